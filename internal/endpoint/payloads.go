package endpoint

import (
	"encoding/binary"
	"fmt"

	"github.com/fountainhead/scriptsync/internal/block"
	"github.com/fountainhead/scriptsync/internal/patch"
)

const idLen = 24 // 24-byte ASCII hex project_id / file_id, per spec §6

// UserPublicForm is User.public_form: u8 username_len, u8 visible_name_len,
// username (ASCII), visible_name (UTF-8).
type UserPublicForm struct {
	Username    string
	VisibleName string
}

// ProjectSummary is one entry of LOGIN_RESULT's project list: name plus its
// 24-byte id.
type ProjectSummary struct {
	ID   string
	Name string
}

// LoginRequest is LOGIN's payload.
type LoginRequest struct {
	Username string
	Password string
}

// LoginResult is LOGIN_RESULT's payload. ErrorCode 0 means success; Projects
// and User are populated only then.
type LoginResult struct {
	ErrorCode byte
	Projects  []ProjectSummary
	User      UserPublicForm
}

// NamePayload is CREATE_PROJECT's payload.
type NamePayload struct {
	Name string
}

// IDAndName covers CREATED_PROJECT / RENAME_PROJECT / RENAMED_PROJECT and,
// by the same shape, CREATE_DOC / CREATED_DOC / CREATE_FOLDER / CREATED_FOLDER.
type IDAndName struct {
	ID   string
	Name string
}

// IDPayload covers DELETE_PROJECT / DELETED_PROJECT / OPEN_PROJECT /
// JOIN_DOC / LEAVE_DOC / DELETE_DOC / DELETED_DOC.
type IDPayload struct {
	ID string
}

// SyncProject is SYNC_PROJECT/OPENED_PROJECT's payload: the project's own
// id/name (Project.bytes) plus its currently-open user list.
type SyncProject struct {
	Project ProjectSummary
	Users   []UserPublicForm
}

// SyncDoc is SYNC_DOC's payload: full block snapshot plus the
// server's current document_timestamp.
type SyncDoc struct {
	FileID            string
	DocumentTimestamp uint32
	Blocks            []*block.Block
}

// PatchUpload is SCRIPT_PATCH's payload (client -> server), carrying the
// branch the client last observed and its optimistic document_timestamp.
type PatchUpload struct {
	FileID            string
	BranchID          uint32
	DocumentTimestamp uint32
	Patch             *patch.Patch
}

// PatchAck is SCRIPT_PATCH_ACK's payload (server -> uploading client): the
// patch re-stamped with server-assigned change_ids.
type PatchAck struct {
	FileID string
	Patch  *patch.Patch
}

// PatchBroadcast is SCRIPT_PATCHED's payload (server -> other joined
// clients).
type PatchBroadcast struct {
	FileID            string
	DocumentTimestamp uint32
	Patch             *patch.Patch
}

// ErrorPayload covers ERROR_FULFILLING_SERVER_REQUEST and
// ERROR_FULFILLING_PROJECT_REQUEST.
type ErrorPayload struct {
	Code    byte
	Message string
}

func encodeID(buf []byte, id string) ([]byte, error) {
	if len(id) != idLen {
		return nil, fmt.Errorf("endpoint: id %q is not %d bytes", id, idLen)
	}
	return append(buf, id...), nil
}

func decodeID(buf []byte) (string, []byte, error) {
	if len(buf) < idLen {
		return "", nil, fmt.Errorf("endpoint: truncated id")
	}
	return string(buf[:idLen]), buf[idLen:], nil
}

func appendLenPrefixedU8(buf []byte, s string) ([]byte, error) {
	if len(s) > 0xFF {
		return nil, fmt.Errorf("endpoint: string %q exceeds u8 length prefix", s)
	}
	buf = append(buf, byte(len(s)))
	return append(buf, s...), nil
}

func readLenPrefixedU8(buf []byte) (string, []byte, error) {
	if len(buf) < 1 {
		return "", nil, fmt.Errorf("endpoint: truncated length prefix")
	}
	n := int(buf[0])
	buf = buf[1:]
	if len(buf) < n {
		return "", nil, fmt.Errorf("endpoint: truncated string (want %d, have %d)", n, len(buf))
	}
	return string(buf[:n]), buf[n:], nil
}

func encodeUserPublicForm(buf []byte, u UserPublicForm) ([]byte, error) {
	buf, err := appendLenPrefixedU8(buf, u.Username)
	if err != nil {
		return nil, err
	}
	return appendLenPrefixedU8(buf, u.VisibleName)
}

func decodeUserPublicForm(buf []byte) (UserPublicForm, []byte, error) {
	username, rest, err := readLenPrefixedU8(buf)
	if err != nil {
		return UserPublicForm{}, nil, err
	}
	visible, rest, err := readLenPrefixedU8(rest)
	if err != nil {
		return UserPublicForm{}, nil, err
	}
	return UserPublicForm{Username: username, VisibleName: visible}, rest, nil
}

func encodeLoginRequest(p LoginRequest) ([]byte, error) {
	var buf []byte
	var err error
	if buf, err = appendLenPrefixedU8(buf, p.Username); err != nil {
		return nil, err
	}
	return appendLenPrefixedU8(buf, p.Password)
}

func decodeLoginRequest(buf []byte) (any, error) {
	username, rest, err := readLenPrefixedU8(buf)
	if err != nil {
		return nil, err
	}
	password, _, err := readLenPrefixedU8(rest)
	if err != nil {
		return nil, err
	}
	return LoginRequest{Username: username, Password: password}, nil
}

func encodeLoginResult(p LoginResult) ([]byte, error) {
	buf := []byte{p.ErrorCode}
	if p.ErrorCode != 0 {
		return buf, nil
	}
	if len(p.Projects) > 0xFF {
		return nil, fmt.Errorf("endpoint: too many projects for u8 count")
	}
	buf = append(buf, byte(len(p.Projects)))
	var err error
	for _, proj := range p.Projects {
		if buf, err = appendLenPrefixedU8(buf, proj.Name); err != nil {
			return nil, err
		}
		if buf, err = encodeID(buf, proj.ID); err != nil {
			return nil, err
		}
	}
	return encodeUserPublicForm(buf, p.User)
}

func decodeLoginResult(buf []byte) (any, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("endpoint: empty LOGIN_RESULT")
	}
	code := buf[0]
	rest := buf[1:]
	if code != 0 {
		return LoginResult{ErrorCode: code}, nil
	}
	if len(rest) < 1 {
		return nil, fmt.Errorf("endpoint: truncated LOGIN_RESULT project_count")
	}
	count := int(rest[0])
	rest = rest[1:]

	projects := make([]ProjectSummary, 0, count)
	for i := 0; i < count; i++ {
		name, r2, err := readLenPrefixedU8(rest)
		if err != nil {
			return nil, err
		}
		id, r3, err := decodeID(r2)
		if err != nil {
			return nil, err
		}
		projects = append(projects, ProjectSummary{ID: id, Name: name})
		rest = r3
	}
	user, _, err := decodeUserPublicForm(rest)
	if err != nil {
		return nil, err
	}
	return LoginResult{ErrorCode: 0, Projects: projects, User: user}, nil
}

func encodeNamePayload(p NamePayload) ([]byte, error) {
	return appendLenPrefixedU8(nil, p.Name)
}

func decodeNamePayload(buf []byte) (any, error) {
	name, _, err := readLenPrefixedU8(buf)
	if err != nil {
		return nil, err
	}
	return NamePayload{Name: name}, nil
}

func encodeIDAndName(p IDAndName) ([]byte, error) {
	buf, err := encodeID(nil, p.ID)
	if err != nil {
		return nil, err
	}
	return appendLenPrefixedU8(buf, p.Name)
}

func decodeIDAndName(buf []byte) (any, error) {
	id, rest, err := decodeID(buf)
	if err != nil {
		return nil, err
	}
	name, _, err := readLenPrefixedU8(rest)
	if err != nil {
		return nil, err
	}
	return IDAndName{ID: id, Name: name}, nil
}

func encodeUserPublicFormPayload(p UserPublicForm) ([]byte, error) {
	return encodeUserPublicForm(nil, p)
}

func decodeUserPublicFormPayload(buf []byte) (any, error) {
	u, _, err := decodeUserPublicForm(buf)
	return u, err
}

func encodeIDPayload(p IDPayload) ([]byte, error) {
	return encodeID(nil, p.ID)
}

func decodeIDPayload(buf []byte) (any, error) {
	id, _, err := decodeID(buf)
	if err != nil {
		return nil, err
	}
	return IDPayload{ID: id}, nil
}

func encodeSyncProject(p SyncProject) ([]byte, error) {
	if len(p.Users) > 0xFF {
		return nil, fmt.Errorf("endpoint: too many users for u8 count")
	}
	buf := []byte{byte(len(p.Users))}
	var err error
	if buf, err = encodeID(buf, p.Project.ID); err != nil {
		return nil, err
	}
	if buf, err = appendLenPrefixedU8(buf, p.Project.Name); err != nil {
		return nil, err
	}
	for _, u := range p.Users {
		if buf, err = encodeUserPublicForm(buf, u); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func decodeSyncProject(buf []byte) (any, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("endpoint: empty SYNC_PROJECT")
	}
	count := int(buf[0])
	rest := buf[1:]
	id, rest, err := decodeID(rest)
	if err != nil {
		return nil, err
	}
	name, rest, err := readLenPrefixedU8(rest)
	if err != nil {
		return nil, err
	}
	users := make([]UserPublicForm, 0, count)
	for i := 0; i < count; i++ {
		var u UserPublicForm
		u, rest, err = decodeUserPublicForm(rest)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return SyncProject{Project: ProjectSummary{ID: id, Name: name}, Users: users}, nil
}

func encodeSyncDoc(p SyncDoc) ([]byte, error) {
	buf, err := encodeID(nil, p.FileID)
	if err != nil {
		return nil, err
	}
	buf = appendU32(buf, uint32(len(p.Blocks)))
	buf = appendU32(buf, p.DocumentTimestamp)
	for _, b := range p.Blocks {
		if buf, err = b.EncodeTo(buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func decodeSyncDoc(buf []byte) (any, error) {
	fileID, rest, err := decodeID(buf)
	if err != nil {
		return nil, err
	}
	if len(rest) < 8 {
		return nil, fmt.Errorf("endpoint: truncated SYNC_DOC header")
	}
	count := binary.BigEndian.Uint32(rest[0:4])
	ts := binary.BigEndian.Uint32(rest[4:8])
	rest = rest[8:]

	blocks := make([]*block.Block, 0, count)
	for i := uint32(0); i < count; i++ {
		b, n, err := block.Decode(rest)
		if err != nil {
			return nil, fmt.Errorf("endpoint: SYNC_DOC block %d: %w", i, err)
		}
		blocks = append(blocks, b)
		rest = rest[n:]
	}
	return SyncDoc{FileID: fileID, DocumentTimestamp: ts, Blocks: blocks}, nil
}

func encodePatchUpload(p PatchUpload) ([]byte, error) {
	buf, err := encodeID(nil, p.FileID)
	if err != nil {
		return nil, err
	}
	buf = appendU32(buf, p.BranchID)
	buf = appendU32(buf, p.DocumentTimestamp)
	return p.Patch.EncodeTo(buf)
}

func decodePatchUpload(buf []byte) (any, error) {
	fileID, rest, err := decodeID(buf)
	if err != nil {
		return nil, err
	}
	if len(rest) < 8 {
		return nil, fmt.Errorf("endpoint: truncated SCRIPT_PATCH header")
	}
	branch := binary.BigEndian.Uint32(rest[0:4])
	ts := binary.BigEndian.Uint32(rest[4:8])
	p, _, err := patch.Decode(rest[8:])
	if err != nil {
		return nil, err
	}
	return PatchUpload{FileID: fileID, BranchID: branch, DocumentTimestamp: ts, Patch: p}, nil
}

func encodePatchAck(p PatchAck) ([]byte, error) {
	buf, err := encodeID(nil, p.FileID)
	if err != nil {
		return nil, err
	}
	return p.Patch.EncodeTo(buf)
}

func decodePatchAck(buf []byte) (any, error) {
	fileID, rest, err := decodeID(buf)
	if err != nil {
		return nil, err
	}
	p, _, err := patch.Decode(rest)
	if err != nil {
		return nil, err
	}
	return PatchAck{FileID: fileID, Patch: p}, nil
}

func encodePatchBroadcast(p PatchBroadcast) ([]byte, error) {
	buf, err := encodeID(nil, p.FileID)
	if err != nil {
		return nil, err
	}
	buf = appendU32(buf, p.DocumentTimestamp)
	return p.Patch.EncodeTo(buf)
}

func decodePatchBroadcast(buf []byte) (any, error) {
	fileID, rest, err := decodeID(buf)
	if err != nil {
		return nil, err
	}
	if len(rest) < 4 {
		return nil, fmt.Errorf("endpoint: truncated SCRIPT_PATCHED header")
	}
	ts := binary.BigEndian.Uint32(rest[0:4])
	p, _, err := patch.Decode(rest[4:])
	if err != nil {
		return nil, err
	}
	return PatchBroadcast{FileID: fileID, DocumentTimestamp: ts, Patch: p}, nil
}

func encodeErrorPayload(p ErrorPayload) ([]byte, error) {
	buf := []byte{p.Code}
	return appendLenPrefixedU8(buf, p.Message)
}

func decodeErrorPayload(buf []byte) (any, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("endpoint: empty error payload")
	}
	msg, _, err := readLenPrefixedU8(buf[1:])
	if err != nil {
		return nil, err
	}
	return ErrorPayload{Code: buf[0], Message: msg}, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
