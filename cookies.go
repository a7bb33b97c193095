package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CookieStore persists the browser cookies captured just before the sale as
// a JSON array, overwriting any previous snapshot.
type CookieStore struct {
	Path string
}

func NewCookieStore(path string) *CookieStore {
	return &CookieStore{Path: path}
}

func (s *CookieStore) Save(cookies []CookieRecord) error {
	if cookies == nil {
		cookies = []CookieRecord{}
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cookies-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

func (s *CookieStore) Load() ([]CookieRecord, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var cookies []CookieRecord
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	return cookies, nil
}
