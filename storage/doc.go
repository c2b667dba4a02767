package storage

// storage persists a journal of sent messages so operators can look up what
// went out under a given Message-ID. Entries expire after a configurable TTL.
