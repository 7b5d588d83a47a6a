package ir

// CompilerVersion is the reljoin compiler version.
const CompilerVersion = "0.1.0"
