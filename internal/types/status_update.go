package types

// StatusUpdate is the closed union of ways a Pipeline invocation can
// transition a wallpaper record to a terminal state. It replaces the
// dynamic dict payload of the original implementation (SPEC_FULL.md
// section 9, "Dynamic dict payloads for store updates") — constructing
// one of these is the only way to call StoreGateway.UpdateStatus, so an
// update carrying a field its state does not have is rejected at compile
// time, not at write. A field left empty is not caught by the compiler.
type StatusUpdate interface {
	isStatusUpdate()
	WallpaperID() string
}

// PostedUpdate transitions a record to Posted. SHA256 is mandatory —
// P1 in SPEC_FULL.md requires posted rows to carry a non-null hash.
type PostedUpdate struct {
	ID       string
	SHA256   string
	Telegram TelegramResponse
}

func (PostedUpdate) isStatusUpdate()        {}
func (u PostedUpdate) WallpaperID() string  { return u.ID }

// SkippedUpdate transitions a record to Skipped, typically on an exact
// content-hash match against an already-posted wallpaper.
type SkippedUpdate struct {
	ID          string
	MatchedID   string
	Reason      string
}

func (SkippedUpdate) isStatusUpdate()       {}
func (u SkippedUpdate) WallpaperID() string { return u.ID }

// FailedUpdate transitions a record to Failed. SHA256 is optional — a
// download failure never reaches the hashing stage.
type FailedUpdate struct {
	ID       string
	SHA256   string
	Reason   string
	Telegram *TelegramResponse
}

func (FailedUpdate) isStatusUpdate()        {}
func (u FailedUpdate) WallpaperID() string  { return u.ID }
