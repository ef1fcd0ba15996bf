package state

var pausePrefix = []byte("pause/")

func pauseKey(module string) []byte {
	return append(append([]byte(nil), pausePrefix...), module...)
}

// SetPaused toggles the pause flag for module.
func (t *Txn) SetPaused(module string, paused bool) error {
	if !paused {
		return t.KVDelete(pauseKey(module))
	}
	return t.KVPut(pauseKey(module), true)
}

// IsPaused reports whether module is paused. Read errors are treated as
// "not paused".
func (t *Txn) IsPaused(module string) bool {
	var paused bool
	ok, err := t.KVGet(pauseKey(module), &paused)
	return err == nil && ok && paused
}
