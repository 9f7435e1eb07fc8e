package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/featmine/internal/config"
)

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		input string
		want  Intent
	}{
		{"extract the new papers", IntentExtract},
		{"please process these documents", IntentExtract},
		{"analyze the data", IntentAnalyze},
		{"show me the correlation between milling speed and conductivity", IntentAnalyze},
		{"quit", IntentDone},
		{"goodbye", IntentDone},
		{"hello", IntentRespond},
		{"what's the weather", IntentRespond},
		{"", IntentRespond},
	}

	k := NewKeywordClassifier()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			intent, _, err := k.Classify(context.Background(), tt.input, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, intent)
		})
	}
}

func TestNewClassifierProviders(t *testing.T) {
	c, err := NewClassifier(config.SupervisorConfig{Provider: "heuristic"})
	require.NoError(t, err)
	assert.IsType(t, &KeywordClassifier{}, c)

	c, err = NewClassifier(config.SupervisorConfig{})
	require.NoError(t, err)
	assert.IsType(t, &KeywordClassifier{}, c)

	_, err = NewClassifier(config.SupervisorConfig{Provider: "bogus"})
	assert.Error(t, err)
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Intent
		wantMsg  string
	}{
		{
			name:     "well formed",
			response: "ACTION: extract\nRESPONSE: Starting extraction.",
			want:     IntentExtract,
			wantMsg:  "Starting extraction.",
		},
		{
			name:     "multi line response",
			response: "ACTION: analyze\nRESPONSE: Running analysis.\nThis may take a while.",
			want:     IntentAnalyze,
			wantMsg:  "Running analysis.\nThis may take a while.",
		},
		{
			name:     "invalid action falls back to respond",
			response: "ACTION: launch\nRESPONSE: ok",
			want:     IntentRespond,
			wantMsg:  "ok",
		},
		{
			name:     "free text without format",
			response: "I am not sure what you mean.",
			want:     IntentRespond,
			wantMsg:  "I am not sure what you mean.",
		},
		{
			name:     "done",
			response: "ACTION: done\nRESPONSE: Bye!",
			want:     IntentDone,
			wantMsg:  "Bye!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, msg := parseDecision(tt.response)
			assert.Equal(t, tt.want, intent)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}
