package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpipe/internal/models"
)

func TestSelectAccounts(t *testing.T) {
	accounts := []models.EmailAccount{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	tests := []struct {
		name    string
		only    []string
		want    []string
		wantErr string
	}{
		{name: "all when empty", only: nil, want: []string{"a", "b", "c"}},
		{name: "keeps configuration order", only: []string{"c", "a"}, want: []string{"a", "c"}},
		{name: "unknown ids", only: []string{"a", "x", "y", "x"}, wantErr: "unknown accounts: x, y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectAccounts(accounts, tt.only)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			var ids []string
			for _, acc := range got {
				ids = append(ids, acc.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
