package workspace

import (
	"context"
	"strings"
)

// StubPath is the file seeded by LoadStub.
const StubPath = "main.tf"

// StubContent is a minimal configuration that passes fmt, init and validate.
var StubContent = strings.Join([]string{
	"terraform {",
	`  required_version = ">= 1.5.0"`,
	"}",
	"",
	"locals {",
	`  project = "stub"`,
	"}",
	"",
}, "\n")

// LoadStub seeds the store with the stub file and returns it.
func LoadStub(ctx context.Context, s Store) (FileEntry, error) {
	stub := FileEntry{Path: StubPath, Content: StubContent}
	if err := s.Write(ctx, stub); err != nil {
		return FileEntry{}, err
	}
	return stub, nil
}
