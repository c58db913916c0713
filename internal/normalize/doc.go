// Package normalize turns upstream entity records into token match rules.
//
// Each record's name is split on whitespace, every token is lower-cased, and
// the tokens become the LOWER constraints of one MatchRule carrying the
// caller's label. The package is pure: it performs no I/O and never modifies
// its input. Callers decide how a name is reached inside a record by passing
// a FieldAccessor, so REST listings and SPARQL bindings are handled alike.
package normalize
