package store

import (
	"strings"

	"github.com/conference-central/backend/internal/models"
)

// Dialect renders the parts of a conference query that differ between engines.
type Dialect interface {
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// TopicContains returns a predicate true when the topics column holds the bound value.
	TopicContains(placeholder string) string
}

// ConferenceWhere builds the WHERE and ORDER BY clauses for q, numbering
// arguments from start. The query must already be validated.
func ConferenceWhere(q models.ConferenceQuery, inequality models.QueryField, d Dialect, start int) (where, orderBy string, args []any) {
	var conds []string
	n := start
	for _, f := range q.Filters {
		ph := d.Placeholder(n)
		n++
		args = append(args, f.Arg())
		if f.Field == models.FieldTopic {
			pred := d.TopicContains(ph)
			if f.Operator == models.OpNE {
				pred = "NOT (" + pred + ")"
			}
			conds = append(conds, pred)
			continue
		}
		conds = append(conds, "c."+f.Field.Column()+" "+f.Operator.SQL()+" "+ph)
	}
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	orderBy = " ORDER BY c.name, c.id"
	if inequality != "" {
		orderBy = " ORDER BY c." + inequality.Column() + ", c.name, c.id"
	}
	return where, orderBy, args
}

// IndexConferences orders loaded conferences to match keys.
func IndexConferences(keys []models.ConferenceKey, loaded []models.Conference) []models.Conference {
	byKey := make(map[models.ConferenceKey]models.Conference, len(loaded))
	for _, c := range loaded {
		byKey[c.Key] = c
	}
	out := make([]models.Conference, 0, len(keys))
	for _, k := range keys {
		if c, ok := byKey[k]; ok {
			out = append(out, c)
		}
	}
	return out
}

// IndexSessions orders loaded sessions to match keys.
func IndexSessions(keys []models.SessionKey, loaded []models.Session) []models.Session {
	byKey := make(map[models.SessionKey]models.Session, len(loaded))
	for _, s := range loaded {
		byKey[s.Key] = s
	}
	out := make([]models.Session, 0, len(keys))
	for _, k := range keys {
		if s, ok := byKey[k]; ok {
			out = append(out, s)
		}
	}
	return out
}
