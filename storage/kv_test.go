package storage

import (
	"bytes"
	"testing"
	"time"

	"gopkg.in/yaml.v2"
)

func TestKVConfig_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr bool
	}{
		{
			name: "valid/canonical case",
			config: `storageDir: /var/lib/mailer/journal
keyTTL: "168h"`,
			wantErr: false,
		},
		{
			name: "unknown keys are ignored",
			config: `storageDir: /var/lib/mailer/journal
keyTTL: "168h"
cleanupInterval: "10"`,
			wantErr: false,
		},
		{
			name: "key TTL not a duration",
			config: `storageDir: /var/lib/mailer/journal
keyTTL: "168"`,
			wantErr: true,
		},
		{
			name:    "no key TTL",
			config:  `storageDir: /var/lib/mailer/journal`,
			wantErr: true,
		},
		{
			name:    "no storage path",
			config:  `keyTTL: "168h"`,
			wantErr: true,
		},
		{
			name:    "not a map",
			config:  `[]`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bytes.NewBuffer([]byte(tt.config))
			dec := yaml.NewDecoder(buf)
			var c KVConfig
			err := dec.Decode(&c)
			if (err != nil) != tt.wantErr {
				t.Errorf("wantErr = %v but got %v with err %v", tt.wantErr, err != nil, err)
			}
			if err == nil && c.KeyTTLDuration != 168*time.Hour {
				t.Errorf("expected a keyTTL of 168h but got %v", c.KeyTTLDuration)
			}

		})
	}
}
