package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConferenceQuery_Validate(t *testing.T) {
	tests := []struct {
		name       string
		filters    []Filter
		inequality QueryField
		wantErr    bool
	}{
		{name: "no filters"},
		{
			name:    "equality only",
			filters: []Filter{{FieldCity, OpEQ, "London"}, {FieldTopic, OpEQ, "Go"}},
		},
		{
			name:       "single range field",
			filters:    []Filter{{FieldMonth, OpGT, "3"}, {FieldMonth, OpLTEQ, "9"}, {FieldCity, OpEQ, "Paris"}},
			inequality: FieldMonth,
		},
		{
			name:    "two range fields",
			filters: []Filter{{FieldMonth, OpGT, "3"}, {FieldMaxAttendees, OpLT, "100"}},
			wantErr: true,
		},
		{
			name:    "topic range",
			filters: []Filter{{FieldTopic, OpGT, "Go"}},
			wantErr: true,
		},
		{
			name:    "numeric field with text",
			filters: []Filter{{FieldMaxAttendees, OpEQ, "many"}},
			wantErr: true,
		},
		{
			name:    "unknown field",
			filters: []Filter{{"SPEAKER", OpEQ, "x"}},
			wantErr: true,
		},
		{
			name:    "unknown operator",
			filters: []Filter{{FieldCity, "LIKE", "x"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConferenceQuery{Filters: tt.filters}.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.inequality, got)
		})
	}
}

func TestFilter_Arg(t *testing.T) {
	require.Equal(t, 12, Filter{FieldMonth, OpEQ, "12"}.Arg())
	require.Equal(t, "Rome", Filter{FieldCity, OpEQ, "Rome"}.Arg())
}

func TestProfileDefaults(t *testing.T) {
	p := NewProfile("u1", "jane.doe@example.com")
	require.Equal(t, "jane.doe", p.DisplayName)
	require.Equal(t, TeeShirtNotSpecified, p.TeeShirtSize)
	require.Empty(t, p.ConferenceKeysToAttend)

	key := ConferenceKey{OrganizerID: "o", ID: 1}
	p.ConferenceKeysToAttend = append(p.ConferenceKeysToAttend, key.String())
	require.True(t, p.IsAttending(key))
	require.False(t, p.IsAttending(ConferenceKey{OrganizerID: "o", ID: 2}))
}
