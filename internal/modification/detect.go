// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package modification folds "modification" appointments (extension,
// shortening, early start, late start) into the appointment they edit.
package modification

import (
	"regexp"
	"strings"

	"github.com/bcem/archiver/internal/models"
)

// Detector classifies a subject and returns its normalized root (the
// subject with the annotation removed). Merge arithmetic only depends on
// this interface, so the matching convention can be replaced.
type Detector interface {
	Detect(subject string) (models.ModificationType, string)
}

// KeywordDetector recognises a trailing annotation in one of three forms,
// case-insensitively:
//
//	"Team Sync (Extension)"   "Team Sync [late start]"
//	"Team Sync - shortened"   "Team Sync: early start"
//
// The keyword must close the subject and the remaining root must be
// non-empty. A bare trailing word ("Discuss extension") is not an
// annotation.
type KeywordDetector struct{}

const keywordPattern = `(extension|shortened|early[\s-]+start|late[\s-]+start)`

var annotationRe = regexp.MustCompile(`(?i)^(.*?)\s*(?:\(\s*` + keywordPattern + `\s*\)|\[\s*` + keywordPattern + `\s*\]|(?:\s-|:)\s*` + keywordPattern + `)\s*$`)

// Detect implements Detector.
func (KeywordDetector) Detect(subject string) (models.ModificationType, string) {
	m := annotationRe.FindStringSubmatch(strings.TrimSpace(subject))
	if m == nil {
		return models.ModificationNone, ""
	}

	root := NormalizeSubject(m[1])
	if root == "" {
		return models.ModificationNone, ""
	}

	keyword := firstNonEmpty(m[2], m[3], m[4])
	return typeForKeyword(keyword), root
}

// DetectType classifies subject with the default KeywordDetector.
func DetectType(subject string) models.ModificationType {
	t, _ := KeywordDetector{}.Detect(subject)
	return t
}

func typeForKeyword(k string) models.ModificationType {
	k = strings.ToLower(strings.Join(strings.FieldsFunc(k, func(r rune) bool {
		return r == '-' || r == ' ' || r == '\t'
	}), " "))
	switch k {
	case "extension":
		return models.ModificationExtension
	case "shortened":
		return models.ModificationShortened
	case "early start":
		return models.ModificationEarlyStart
	case "late start":
		return models.ModificationLateStart
	default:
		return models.ModificationNone
	}
}

// NormalizeSubject lowercases, collapses whitespace and strips trailing
// separators so "Team Sync -" and "team  sync" compare equal.
func NormalizeSubject(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimSpace(strings.TrimRight(s, " -:"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
