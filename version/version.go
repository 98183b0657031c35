package version

// Version wird beim Bauen per -ldflags "-X" gesetzt
var Version string = "0.0.0"
