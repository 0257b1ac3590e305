package mockservice

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

const (
	PactSpecificationVersion = "2.0.0"
	DefaultPactDir           = "./pacts"
)

type Pacticipant struct {
	Name string `json:"name"`
}

type PactSpecification struct {
	Version string `json:"version"`
}

type Metadata struct {
	PactSpecification PactSpecification `json:"pactSpecification"`
}

// ContractDocument is assembled fresh from the repository every time it is
// written.
type ContractDocument struct {
	Consumer     Pacticipant    `json:"consumer"`
	Provider     Pacticipant    `json:"provider"`
	Interactions []*Interaction `json:"interactions"`
	Metadata     Metadata       `json:"metadata"`
}

// BuildDocument keeps the interactions in the order given, which is their
// registration order.
func BuildDocument(consumer, provider string, interactions []*Interaction) *ContractDocument {
	return &ContractDocument{
		Consumer:     Pacticipant{Name: consumer},
		Provider:     Pacticipant{Name: provider},
		Interactions: append([]*Interaction{}, interactions...),
		Metadata:     Metadata{PactSpecification: PactSpecification{Version: PactSpecificationVersion}},
	}
}

var prettyOptions = &pretty.Options{Width: 80, Prefix: "", Indent: "  ", SortKeys: false}

// Marshal serialises the document with a fixed key order: consumer,
// provider, interactions, metadata. The same input always yields the same
// bytes.
func (d *ContractDocument) Marshal() ([]byte, error) {
	doc := []byte(`{}`)
	var err error

	if doc, err = sjson.SetBytes(doc, "consumer.name", d.Consumer.Name); err != nil {
		return nil, errors.Wrap(err, "unable to set consumer")
	}
	if doc, err = sjson.SetBytes(doc, "provider.name", d.Provider.Name); err != nil {
		return nil, errors.Wrap(err, "unable to set provider")
	}
	if doc, err = sjson.SetRawBytes(doc, "interactions", []byte(`[]`)); err != nil {
		return nil, errors.Wrap(err, "unable to set interactions")
	}
	for _, i := range d.Interactions {
		raw, err := json.Marshal(i)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to serialise interaction '%s'", i.Description)
		}
		if doc, err = sjson.SetRawBytes(doc, "interactions.-1", raw); err != nil {
			return nil, errors.Wrapf(err, "unable to append interaction '%s'", i.Description)
		}
	}
	if doc, err = sjson.SetBytes(doc, "metadata.pactSpecification.version", d.Metadata.PactSpecification.Version); err != nil {
		return nil, errors.Wrap(err, "unable to set metadata")
	}

	return pretty.PrettyOptions(doc, prettyOptions), nil
}

func ParseDocument(data []byte) (*ContractDocument, error) {
	doc := &ContractDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, errors.Wrap(err, "unable to parse contract document")
	}
	return doc, nil
}

// FileName derives the artifact name from the participants, e.g.
// "event api consumer" and "Event API" become
// "event_api_consumer-event_api.json".
func FileName(consumer, provider string) string {
	name := consumer + "-" + provider + ".json"
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// Writer persists contract documents under Dir.
type Writer struct {
	Dir string
	log log.FieldLogger
}

func NewWriter(dir string, logger log.FieldLogger) *Writer {
	if dir == "" {
		dir = DefaultPactDir
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Writer{Dir: dir, log: logger}
}

// Write stores the document and returns its path and content. A missing
// directory is created and the write retried once; other errors are
// returned as they are.
func (w *Writer) Write(doc *ContractDocument) (string, []byte, error) {
	content, err := doc.Marshal()
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(w.Dir, FileName(doc.Consumer.Name, doc.Provider.Name))

	err = retry.Do(
		func() error {
			return os.WriteFile(path, content, 0o644)
		},
		retry.Attempts(2),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(os.IsNotExist),
		retry.OnRetry(func(_ uint, err error) {
			w.log.Infof("pact directory %s does not exist, creating it", w.Dir)
			if mkErr := os.MkdirAll(w.Dir, 0o755); mkErr != nil {
				w.log.WithError(mkErr).Errorf("unable to create pact directory %s", w.Dir)
			}
		}),
	)
	if err != nil {
		return "", nil, errors.Wrapf(err, "unable to write pact file %s", path)
	}

	w.log.Infof("wrote pact file %s with %d interaction(s)", path, len(doc.Interactions))
	return path, content, nil
}
