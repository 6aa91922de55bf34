package scylla

import (
	"reflect"
	"strings"
	"testing"
)

func TestNewStatementsComplete(t *testing.T) {
	stmts := newStatements()

	v := reflect.ValueOf(*stmts)
	typ := v.Type()
	for i := 0; i < v.NumField(); i++ {
		if v.Field(i).String() == "" {
			t.Errorf("statement %s is empty", typ.Field(i).Name)
		}
	}
}

// Placeholder counts must match the bind arities the repositories use;
// a drift here would only surface against a live cluster.
func TestStatementPlaceholderArity(t *testing.T) {
	stmts := newStatements()

	tests := []struct {
		name string
		cql  string
		want int
	}{
		{"GetPrincipalByEmail", stmts.GetPrincipalByEmail, 1},
		{"GetPrincipalByID", stmts.GetPrincipalByID, 1},
		{"CreateChallenge", stmts.CreateChallenge, 13},
		{"RecentChallenges", stmts.RecentChallenges, 1},
		{"UpdateAttemptCount", stmts.UpdateAttemptCount, 4},
		{"MarkChallengeUsed", stmts.MarkChallengeUsed, 3},
		{"DeleteForEmail", stmts.DeleteForEmail, 1},
		{"UpsertSession", stmts.UpsertSession, 7},
		{"GetSession", stmts.GetSession, 2},
		{"DeleteSession", stmts.DeleteSession, 2},
		{"ListSessions", stmts.ListSessions, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Count(tt.cql, "?"); got != tt.want {
				t.Errorf("placeholders = %d, want %d", got, tt.want)
			}
		})
	}
}
