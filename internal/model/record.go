package model

// SourceRecord is one decoded upstream entity (a JSON object from a REST
// listing or a SPARQL result binding). Records are read, never modified.
type SourceRecord map[string]any
