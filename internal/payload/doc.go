// Package payload models the documents exchanged between hops.
//
// A payload is stored verbatim in the provenance store. For analysis it is
// decoded into a sealed Value tree: format A (json) decodes directly, format
// B (xml) is first converted to the equivalent nested-map representation
// (attributes as "@name", mixed text as "#text", repeated children as
// arrays). Both formats therefore flow through the same comparison.
//
// Envelope handling lives here as well: the initial document of a chain may
// be a Bundle of typed sub-records, and Unwrap narrows it to the single
// clinical record every later hop operates on.
package payload
