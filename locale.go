package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lang/*.yaml
var bundledLocales embed.FS

type Locale struct {
	translations map[string]string
	locale       string
}

var globalLocale *Locale

// InitLocale loads the locale detected from the environment, falling back
// to en_US.
func InitLocale() error {
	return SetLocale(DetectSystemLocale())
}

// SetLocale switches the active translations.
func SetLocale(locale string) error {
	l, err := LoadLocale(locale)
	if err != nil {
		fallback, ferr := LoadLocale("en_US")
		if ferr != nil {
			return fmt.Errorf("failed to load fallback locale en_US: %w", ferr)
		}
		globalLocale = fallback
		return fmt.Errorf("failed to load locale '%s', using en_US: %w", locale, err)
	}
	globalLocale = l
	return nil
}

// DetectSystemLocale detects the user's system locale
func DetectSystemLocale() string {
	for _, env := range []string{"SECKILL_LANG", "LANG", "LC_ALL", "LC_MESSAGES"} {
		if locale := os.Getenv(env); locale != "" {
			// LANG is typically like "en_US.UTF-8" or "zh_CN.UTF-8"
			parts := strings.Split(locale, ".")
			if parts[0] != "" && parts[0] != "C" && parts[0] != "POSIX" {
				return parts[0]
			}
		}
	}

	if runtime.GOOS == "windows" {
		if locale := os.Getenv("LANG"); locale != "" {
			return locale
		}
	}

	return "en_US"
}

// LoadLocale reads lang/<locale>.yaml next to the executable, falling back
// to the translations compiled into the binary.
func LoadLocale(locale string) (*Locale, error) {
	data, err := readLocaleFile(locale)
	if err != nil {
		return nil, err
	}

	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse locale %s: %w", locale, err)
	}

	return &Locale{
		translations: translations,
		locale:       locale,
	}, nil
}

func readLocaleFile(locale string) ([]byte, error) {
	if exePath, err := os.Executable(); err == nil {
		localeFile := filepath.Join(filepath.Dir(exePath), "lang", locale+".yaml")
		if data, err := os.ReadFile(localeFile); err == nil {
			return data, nil
		}
	}
	data, err := bundledLocales.ReadFile("lang/" + locale + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no translations for locale %s", locale)
	}
	return data, nil
}

// T translates a key, formatting params into the translation when given.
// Unknown keys are returned unchanged.
func T(key string, params ...interface{}) string {
	if globalLocale == nil {
		return key
	}

	translation, ok := globalLocale.translations[key]
	if !ok {
		return key
	}

	if len(params) > 0 {
		return fmt.Sprintf(translation, params...)
	}

	return translation
}

// GetLocale returns the current locale code (e.g., "en_US", "zh_CN")
func GetLocale() string {
	if globalLocale == nil {
		return "en_US"
	}
	return globalLocale.locale
}
