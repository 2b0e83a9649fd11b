package idgen

import "encoding/binary"

// shortIDLength is the textual width of a workspace short-id. 8 base36
// digits cover up to 36^8 ≈ 2.8e12 distinct values, comfortably above any
// realistic BIGSERIAL stream_id range for a single deployment's lifetime.
const shortIDLength = 8

// EncodeWorkspaceShortID renders a numeric stream_id as the short-id a
// session URL carries (spec.md §4.E step 1: "workspace short-id in the
// URL"). The underlying numeric id is the event_streams.stream_id for the
// workspace's entity stream.
func EncodeWorkspaceShortID(streamID int64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(streamID))
	return EncodeBase36(buf, shortIDLength)
}

// DecodeWorkspaceShortID reverses EncodeWorkspaceShortID. Returns
// DecodeError for malformed input; callers treat that as the "invalid ->
// close with policy-violation" case in spec.md §4.E step 2.
func DecodeWorkspaceShortID(shortID string) (int64, error) {
	return DecodeBase36(shortID)
}
