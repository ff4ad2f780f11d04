package app

// Key binding constants used in handleKey.
const (
	KeyQuit        = "q"
	KeyCtrlC       = "ctrl+c"
	KeySearch      = "/"
	KeyEsc         = "esc"
	KeyTab         = "tab"
	KeyEnter       = "enter"
	KeyUp          = "up"
	KeyDown        = "down"
	KeyJ           = "j"
	KeyK           = "k"
	KeyPgUp        = "pgup"
	KeyPgDown      = "pgdown"
	KeyClearResult = "ctrl+l"
	KeyCopy        = "y"
	KeyCopyCtrl    = "ctrl+y"
	KeyNotes       = "n"
	KeyRefresh     = "r"
	KeySave        = "s"
	KeyUnsave      = "x"
)
