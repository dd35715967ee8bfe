package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esurv/flowqueue/internal/domain"
)

func TestNewDocument(t *testing.T) {
	d, err := domain.NewDocument(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(d))
}

func TestDocumentObject(t *testing.T) {
	d := domain.Document(`{"survey_id":1001,"customer_id":"CUST001"}`)
	obj, err := d.Object()
	require.NoError(t, err)
	assert.Equal(t, "CUST001", obj["customer_id"])
}

func TestDocumentObjectRejectsNonObject(t *testing.T) {
	cases := map[string]domain.Document{
		"empty":  nil,
		"array":  domain.Document(`[1,2,3]`),
		"scalar": domain.Document(`42`),
		"null":   domain.Document(`null`),
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.Object()
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestDocumentJSONRoundTrip(t *testing.T) {
	type envelope struct {
		Payload domain.Document `json:"payload"`
	}
	in := envelope{Payload: domain.Document(`{"ok":true}`)}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	var out envelope
	require.NoError(t, json.Unmarshal(b, &out))
	assert.JSONEq(t, `{"ok":true}`, string(out.Payload))
}

func TestDocumentMarshalEmpty(t *testing.T) {
	b, err := json.Marshal(domain.Document(nil))
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}
