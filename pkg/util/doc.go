// Package util provides common utility functions and data structures
//
// This package includes a generic set implementation and a small LRU cache
// used throughout the workflow engine
package util
