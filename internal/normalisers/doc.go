// Package normalisers turns watched files into article text. Each
// normaliser handles a set of file extensions; anything unrecognised is
// treated as plain text.
package normalisers
