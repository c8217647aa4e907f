package classifier

import (
	"strings"
	"unicode/utf8"

	"mailpipe/internal/models"
)

// rule matches when any marker is a substring of the lowercased field it names
type rule struct {
	category models.Category
	folder   models.Folder
	subject  []string
	body     []string
	from     []string
}

// Evaluated top to bottom; the first hit wins.
var rules = []rule{
	{
		category: models.CategoryOutOfOffice,
		subject:  []string{"out of office", "ooo", "automatic reply", "vacation"},
		body:     []string{"i am out of office", "i will be out of the office", "automatic reply", "vacation response"},
	},
	{
		category: models.CategoryMeetingBooked,
		subject:  []string{"meeting", "interview", "appointment", "scheduled", "calendar invite"},
		body:     []string{"meeting link", "zoom link", "google meet", "teams meeting", "confirmed for"},
	},
	{
		category: models.CategoryInterested,
		subject:  []string{"interested", "following up", "next steps", "opportunity", "job", "career", "position"},
		body:     []string{"would like to learn more", "please provide more information", "interested in", "looking forward to"},
	},
	{
		category: models.CategoryNotInterested,
		subject:  []string{"not interested", "unsubscribe", "remove me", "no thanks", "newsletter", "subscription"},
		body:     []string{"not interested", "please remove", "unsubscribe", "do not contact", "opt out"},
	},
	{
		category: models.CategorySpam,
		folder:   models.FolderSpam,
		subject:  []string{"win", "congratulation", "lottery", "prize", "urgent", "bitcoin", "crypto"},
		body:     []string{"click here", "limited time", "act now", "special offer"},
		from:     []string{"noreply", "marketing"},
	},
}

const (
	longBodyRunes    = 1000
	longSubjectRunes = 100
)

// Fallback classifies with fixed keyword rules. It is pure and total: the same
// inputs always give the same taxonomy label.
func Fallback(subject, body, from string, folder models.Folder) models.Category {
	subject = strings.ToLower(subject)
	body = strings.ToLower(body)
	from = strings.ToLower(from)

	for _, r := range rules {
		if r.folder != "" && folder == r.folder {
			return r.category
		}
		if containsAny(subject, r.subject) || containsAny(body, r.body) || containsAny(from, r.from) {
			return r.category
		}
	}

	switch folder {
	case models.FolderSent:
		return models.CategoryOutOfOffice
	case models.FolderSpam:
		return models.CategorySpam
	case models.FolderDraft:
		return models.CategoryInterested
	}

	// long content is usually a newsletter or promotion
	if utf8.RuneCountInString(body) > longBodyRunes || utf8.RuneCountInString(subject) > longSubjectRunes {
		return models.CategoryNotInterested
	}
	return models.CategoryInterested
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
