package email

import (
	"fmt"
	"time"

	"github.com/ShellRechargeSolutionsEU/mailer/storage"
	yaml "gopkg.in/yaml.v2"
)

// SentRecord is what the journal keeps about a delivered message.
type SentRecord struct {
	MessageID  string    `yaml:"messageID"`
	SendID     string    `yaml:"sendID"`
	Subject    string    `yaml:"subject"`
	Recipients int       `yaml:"recipients"`
	SentAt     time.Time `yaml:"sentAt"`
}

// NewKVEntry prepares the record to be saved in the KV database, keyed by
// Message-ID.
func (r SentRecord) NewKVEntry() (storage.KVEntry, error) {
	b, err := yaml.Marshal(r)
	if err != nil {
		return storage.KVEntry{}, fmt.Errorf("can't encode the sent record: %v", err)
	}
	return storage.KVEntry{
		Key:   []byte(r.MessageID),
		Value: b,
	}, nil
}

// LookupSent reads the record stored for messageID.
func LookupSent(kv storage.KeyValue, messageID string) (SentRecord, error) {
	e, err := kv.Read([]byte(messageID))
	if err != nil {
		return SentRecord{}, err
	}
	var r SentRecord
	if err := yaml.Unmarshal(e.Value, &r); err != nil {
		return SentRecord{}, fmt.Errorf("can't decode the sent record: %v", err)
	}
	return r, nil
}
