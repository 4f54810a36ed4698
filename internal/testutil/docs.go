// Package testutil provides deterministic helpers shared by tests: run id
// generators, scripted adapters, and sample clinical documents.
package testutil

// PatientJSON is a bare clinical record.
const PatientJSON = `{"resourceType":"Patient","id":"p1","gender":"female","birthDate":"1970-01-01","name":[{"family":"Ng","given":["Ada"]}]}`

// PatientBundleJSON wraps PatientJSON in an envelope alongside an unrelated
// entry.
const PatientBundleJSON = `{"resourceType":"Bundle","type":"collection","entry":[` +
	`{"resource":{"resourceType":"Organization","id":"o1","name":"General"}},` +
	`{"resource":` + PatientJSON + `}]}`

// PatientXML is the XML spelling of PatientJSON.
const PatientXML = `<Patient xmlns="http://hl7.org/fhir"><id value="p1"/><gender value="female"/><birthDate value="1970-01-01"/></Patient>`

// PatientBundleXML wraps a patient in an XML envelope.
const PatientBundleXML = `<Bundle xmlns="http://hl7.org/fhir"><type value="collection"/><entry><resource>` +
	`<Patient><id value="p1"/><gender value="female"/><birthDate value="1970-01-01"/></Patient>` +
	`</resource></entry></Bundle>`
