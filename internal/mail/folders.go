package mail

import "mailpipe/internal/models"

// DefaultFolder receives the live new-mail subscription
const DefaultFolder = "INBOX"

var providerFolders = map[string]models.Folder{
	"[Gmail]/Sent Mail": models.FolderSent,
	"[Gmail]/Drafts":    models.FolderDraft,
	"[Gmail]/Spam":      models.FolderSpam,
}

// MapFolder normalizes a provider folder name. Unknown names map to INBOX.
func MapFolder(provider string) models.Folder {
	if folder, ok := providerFolders[provider]; ok {
		return folder
	}
	return models.FolderInbox
}
