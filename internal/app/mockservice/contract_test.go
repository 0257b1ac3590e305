package mockservice

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func contractInteractions(t *testing.T) []*Interaction {
	t.Helper()

	second, err := LoadInteraction([]byte(`{
		"description": "A POST request to create an event",
		"request": {
			"method": "POST",
			"path": "/events",
			"headers": {"Content-Type": "application/json"},
			"body": {"name": "launch", "at": 1.50},
			"matchingRules": {"$.body.name": {"match": "type"}}
		},
		"response": {"status": 201}
	}`))
	require.NoError(t, err)

	return []*Interaction{eventsInteraction(), second}
}

func TestContractDocument_Marshal(t *testing.T) {
	doc := BuildDocument("Event API Consumer", "Event API", contractInteractions(t))

	content, err := doc.Marshal()
	require.NoError(t, err)

	var keys []string
	gjson.ParseBytes(content).ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	assert.Equal(t, []string{"consumer", "provider", "interactions", "metadata"}, keys)

	var interactionKeys []string
	gjson.GetBytes(content, "interactions.0").ForEach(func(k, _ gjson.Result) bool {
		interactionKeys = append(interactionKeys, k.String())
		return true
	})
	assert.Equal(t, []string{"description", "providerState", "request", "response"}, interactionKeys)

	assert.Equal(t, "Event API Consumer", gjson.GetBytes(content, "consumer.name").String())
	assert.Equal(t, "A GET request to retrieve events", gjson.GetBytes(content, "interactions.0.description").String())
	assert.Equal(t, "A POST request to create an event", gjson.GetBytes(content, "interactions.1.description").String())
	assert.Equal(t, "post", gjson.GetBytes(content, "interactions.1.request.method").String())
	assert.Equal(t, "1.50", gjson.GetBytes(content, "interactions.1.request.body.at").Raw)
	assert.Equal(t, "type", gjson.GetBytes(content, `interactions.1.request.matchingRules.$\.body\.name.match`).String())
	assert.Equal(t, "2.0.0", gjson.GetBytes(content, "metadata.pactSpecification.version").String())
	assert.False(t, gjson.GetBytes(content, "interactions.1.providerState").Exists())
}

func TestContractDocument_Stable(t *testing.T) {
	first, err := BuildDocument("consumer", "provider", contractInteractions(t)).Marshal()
	require.NoError(t, err)
	second, err := BuildDocument("consumer", "provider", contractInteractions(t)).Marshal()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestContractDocument_RoundTrip(t *testing.T) {
	doc := BuildDocument("consumer", "provider", contractInteractions(t))
	content, err := doc.Marshal()
	require.NoError(t, err)

	parsed, err := ParseDocument(content)
	require.NoError(t, err)
	assert.Equal(t, doc, parsed)

	again, err := parsed.Marshal()
	require.NoError(t, err)
	assert.Equal(t, content, again)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "event_api_consumer-event_api.json", FileName("Event API Consumer", "Event API"))
	assert.Equal(t, "web-events.json", FileName("web", "events"))
}

func TestWriter_CreatesMissingDirectory(t *testing.T) {
	logger, hook := test.NewNullLogger()
	dir := filepath.Join(t.TempDir(), "nested", "pacts")
	w := NewWriter(dir, logger)

	path, content, err := w.Write(BuildDocument("web", "events", contractInteractions(t)))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "web-events.json"), path)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, written)
	assert.Contains(t, hook.AllEntries()[0].Message, "does not exist")
}

func TestWriter_Overwrites(t *testing.T) {
	logger, _ := test.NewNullLogger()
	w := NewWriter(t.TempDir(), logger)

	_, _, err := w.Write(BuildDocument("web", "events", contractInteractions(t)))
	require.NoError(t, err)
	path, _, err := w.Write(BuildDocument("web", "events", nil))
	require.NoError(t, err)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gjson.GetBytes(written, "interactions.#").Int())
}

func TestWriter_OtherErrorsAreNotRetried(t *testing.T) {
	logger, _ := test.NewNullLogger()
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	// a regular file where the directory should be
	_, _, err := NewWriter(file, logger).Write(BuildDocument("web", "events", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to write pact file")
}
