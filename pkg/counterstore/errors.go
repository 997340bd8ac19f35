package counterstore

import "errors"

var (
	ErrNotFound         = errors.New("counterstore: key not found")
	ErrStoreUnavailable = errors.New("counterstore: store unavailable")
	ErrUnexpectedReply  = errors.New("counterstore: unexpected reply")
)
