// Package result provides typed inference records, the tolerant payload
// parser that produces them, and fluent queries over parsed results.
//
// # Payload Format
//
// The sensor answers an invoke command with a text payload carrying a
// result code and named arrays of integer tuples:
//
//	{"type":1,"name":"INVOKE","code":0,"data":{
//	    "boxes":[[10,10,5,5,90,0],[20,20,5,5,70,1]],
//	    "resolution":[240,240]}}
//
// Tuple layouts:
//
//	boxes:   [x, y, w, h, score, target]
//	classes: [score, target]
//	points:  [x, y, score, target]
//
// # Tolerance
//
// The parser scans each array by bracket depth rather than decoding the
// payload as a whole. A tuple that fails to parse or falls outside the
// image bounds is skipped and counted in Dropped; the remaining tuples are
// still returned. A missing array yields an empty list.
//
// # Queries
//
// Queries are value types; each filter returns a new query and the result
// itself never changes:
//
//	person, err := res.Query().
//	    TargetID(0).
//	    MinConfidence(80).
//	    BestOrFail()
//	if errors.Is(err, fault.ErrNoMatch) {
//	    // nothing confident enough
//	}
package result
