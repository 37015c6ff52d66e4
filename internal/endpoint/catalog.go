// Package endpoint is the fixed registry of wire endpoints (spec §4.7):
// numeric ids, per-endpoint size ceilings, and the payload codecs that
// internal/wire dispatches frames through.
package endpoint

import "fmt"

// ID is a wire endpoint identifier.
type ID uint32

const (
	PING ID = 1
	PONG ID = 2

	LOGIN        ID = 10
	LOGIN_RESULT ID = 11

	ERROR_FULFILLING_SERVER_REQUEST ID = 19

	CREATE_PROJECT  ID = 20
	CREATED_PROJECT ID = 22

	DELETE_PROJECT  ID = 30
	DELETED_PROJECT ID = 32

	OPEN_PROJECT   ID = 40
	SYNC_PROJECT   ID = 41
	OPENED_PROJECT ID = 42

	RENAME_PROJECT  ID = 50
	RENAMED_PROJECT ID = 52

	ERROR_FULFILLING_PROJECT_REQUEST ID = 99

	JOIN_DOC   ID = 100
	SYNC_DOC   ID = 101
	JOINED_DOC ID = 102

	LEAVE_DOC ID = 110
	LEFT_DOC  ID = 112

	CREATE_DOC  ID = 120
	CREATED_DOC ID = 122

	DELETE_DOC  ID = 130
	DELETED_DOC ID = 132

	CREATE_FOLDER  ID = 150
	CREATED_FOLDER ID = 152

	SCRIPT_PATCH     ID = 300
	SCRIPT_PATCH_ACK ID = 301
	SCRIPT_PATCHED   ID = 302

	I_AM_ALIVE  ID = 900
	ARE_U_ALIVE ID = 901

	CLOSE ID = 1000
)

// Size ceilings per spec §4.7. SYNC_DOC is the one large endpoint; everything
// else is bounded tightly since names/usernames are u8-length-prefixed.
const (
	smallMax  = 512
	mediumMax = 16 * 1024
	largeMax  = 1 << 20 // ~1 MiB, SYNC_DOC
)

// Endpoint is one entry of the catalog: its id, size ceiling, and codec.
type Endpoint struct {
	ID          ID
	Name        string
	MaxDataSize int
	Encode      func(payload any) ([]byte, error)
	Decode      func(buf []byte) (any, error)
}

// Catalog is the immutable set of endpoints a Socket dispatches through.
type Catalog struct {
	byID map[ID]*Endpoint
}

// Lookup returns the endpoint for id, if registered.
func (c *Catalog) Lookup(id ID) (*Endpoint, bool) {
	ep, ok := c.byID[id]
	return ep, ok
}

func empty() ([]byte, error) { return nil, nil }

func decodeEmpty([]byte) (any, error) { return struct{}{}, nil }

func register(c *Catalog, ep Endpoint) {
	c.byID[ep.ID] = &ep
}

// Default builds the fixed catalog described in spec §4.7/§6.
func Default() *Catalog {
	c := &Catalog{byID: make(map[ID]*Endpoint)}

	zero := func(id ID, name string) {
		register(c, Endpoint{
			ID: id, Name: name, MaxDataSize: 0,
			Encode: func(any) ([]byte, error) { return empty() },
			Decode: decodeEmpty,
		})
	}
	zero(PING, "PING")
	zero(PONG, "PONG")
	zero(ARE_U_ALIVE, "ARE_U_ALIVE")
	zero(I_AM_ALIVE, "I_AM_ALIVE")
	zero(CLOSE, "CLOSE")

	register(c, Endpoint{ID: LOGIN, Name: "LOGIN", MaxDataSize: smallMax,
		Encode: encodeAny(encodeLoginRequest), Decode: decodeLoginRequest})
	register(c, Endpoint{ID: LOGIN_RESULT, Name: "LOGIN_RESULT", MaxDataSize: mediumMax,
		Encode: encodeAny(encodeLoginResult), Decode: decodeLoginResult})

	register(c, Endpoint{ID: ERROR_FULFILLING_SERVER_REQUEST, Name: "ERROR_FULFILLING_SERVER_REQUEST", MaxDataSize: smallMax,
		Encode: encodeAny(encodeErrorPayload), Decode: decodeErrorPayload})
	register(c, Endpoint{ID: ERROR_FULFILLING_PROJECT_REQUEST, Name: "ERROR_FULFILLING_PROJECT_REQUEST", MaxDataSize: smallMax,
		Encode: encodeAny(encodeErrorPayload), Decode: decodeErrorPayload})

	register(c, Endpoint{ID: CREATE_PROJECT, Name: "CREATE_PROJECT", MaxDataSize: smallMax,
		Encode: encodeAny(encodeNamePayload), Decode: decodeNamePayload})

	idAndName := func(id ID, name string) {
		register(c, Endpoint{ID: id, Name: name, MaxDataSize: smallMax,
			Encode: encodeAny(encodeIDAndName), Decode: decodeIDAndName})
	}
	idAndName(CREATED_PROJECT, "CREATED_PROJECT")
	idAndName(RENAME_PROJECT, "RENAME_PROJECT")
	idAndName(RENAMED_PROJECT, "RENAMED_PROJECT")
	idAndName(CREATE_DOC, "CREATE_DOC")
	idAndName(CREATED_DOC, "CREATED_DOC")
	idAndName(CREATE_FOLDER, "CREATE_FOLDER")
	idAndName(CREATED_FOLDER, "CREATED_FOLDER")

	idOnly := func(id ID, name string) {
		register(c, Endpoint{ID: id, Name: name, MaxDataSize: smallMax,
			Encode: encodeAny(encodeIDPayload), Decode: decodeIDPayload})
	}
	idOnly(DELETE_PROJECT, "DELETE_PROJECT")
	idOnly(DELETED_PROJECT, "DELETED_PROJECT")
	idOnly(OPEN_PROJECT, "OPEN_PROJECT")
	idOnly(JOIN_DOC, "JOIN_DOC")
	idOnly(LEAVE_DOC, "LEAVE_DOC")
	idOnly(DELETE_DOC, "DELETE_DOC")
	idOnly(DELETED_DOC, "DELETED_DOC")

	register(c, Endpoint{ID: SYNC_PROJECT, Name: "SYNC_PROJECT", MaxDataSize: mediumMax,
		Encode: encodeAny(encodeSyncProject), Decode: decodeSyncProject})
	register(c, Endpoint{ID: OPENED_PROJECT, Name: "OPENED_PROJECT", MaxDataSize: mediumMax,
		Encode: encodeAny(encodeSyncProject), Decode: decodeSyncProject})

	register(c, Endpoint{ID: SYNC_DOC, Name: "SYNC_DOC", MaxDataSize: largeMax,
		Encode: encodeAny(encodeSyncDoc), Decode: decodeSyncDoc})

	peerNotice := func(id ID, name string) {
		register(c, Endpoint{ID: id, Name: name, MaxDataSize: smallMax,
			Encode: encodeAny(encodeUserPublicFormPayload), Decode: decodeUserPublicFormPayload})
	}
	peerNotice(JOINED_DOC, "JOINED_DOC")
	peerNotice(LEFT_DOC, "LEFT_DOC")

	register(c, Endpoint{ID: SCRIPT_PATCH, Name: "SCRIPT_PATCH", MaxDataSize: mediumMax,
		Encode: encodeAny(encodePatchUpload), Decode: decodePatchUpload})
	register(c, Endpoint{ID: SCRIPT_PATCH_ACK, Name: "SCRIPT_PATCH_ACK", MaxDataSize: mediumMax,
		Encode: encodeAny(encodePatchAck), Decode: decodePatchAck})
	register(c, Endpoint{ID: SCRIPT_PATCHED, Name: "SCRIPT_PATCHED", MaxDataSize: mediumMax,
		Encode: encodeAny(encodePatchBroadcast), Decode: decodePatchBroadcast})

	return c
}

// encodeAny adapts a typed encode function to the Endpoint.Encode shape,
// asserting the payload is of the expected type.
func encodeAny[T any](fn func(T) ([]byte, error)) func(any) ([]byte, error) {
	return func(payload any) ([]byte, error) {
		v, ok := payload.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("endpoint: expected payload type %T, got %T", zero, payload)
		}
		return fn(v)
	}
}
