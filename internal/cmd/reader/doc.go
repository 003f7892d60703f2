// Package reader contains the Cobra commands of the flr command line: print,
// summary and chunks over single recording files, tail over a repository
// directory, and checkpoint management for named tail consumers.
package reader
