// Package blah is a plug-in format for plain-text friend lists:
//
//	# comment
//	Joey: Chandler, Ross
//	Monica: Rachel
//
// Each line names a person followed by a colon and a comma-separated list of
// friends. People become BlahPerson resources in Namespace; names become
// hasFirstName literals and friendships hasFriend links.
package blah

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/coolbeans/dcatgraph/pkg/format"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// Format registration values.
const (
	Name      = "Blah"
	MediaType = "text/x-blah"
	Extension = "blah"
)

// Namespace holds the Blah vocabulary and the people it describes.
const Namespace = "http://blah.example.org/BlahPerson#"

// Vocabulary terms.
var (
	BlahPerson   = store.IRI(Namespace + "BlahPerson")
	HasFirstName = store.IRI(Namespace + "hasFirstName")
	HasFriend    = store.IRI(Namespace + "hasFriend")
)

// Install registers the Blah format unless a format of the same name is
// already installed, so callers can supply their own implementation first.
func Install(reg *format.Registry) error {
	if reg.IsInstalled(Name) {
		return nil
	}
	return reg.InstallFormat(Name, MediaType, NewParser, Extension)
}

// Person returns the resource for a person's name.
func Person(name string) store.Node {
	return store.IRI(Namespace + url.PathEscape(strings.ReplaceAll(name, " ", "_")))
}

// Parser reads friend lists.
type Parser struct{}

// NewParser is the format.ParserFactory for Blah.
func NewParser() store.Parser { return Parser{} }

func (Parser) Parse(ctx context.Context, r io.Reader, _ string, emit func(store.Triple) error) error {
	scanner := bufio.NewScanner(r)
	seen := make(map[string]bool)
	lineNumber := 0

	describe := func(name string) error {
		if seen[name] {
			return nil
		}
		seen[name] = true
		person := Person(name)
		if err := emit(store.NewTriple(person, store.RDFType, BlahPerson)); err != nil {
			return err
		}
		return emit(store.NewTriple(person, HasFirstName, store.Literal(name)))
	}

	for scanner.Scan() {
		lineNumber++
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, friends, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("blah: line %d: expected \"Name: Friend, ...\"", lineNumber)
		}
		if err := describe(name); err != nil {
			return err
		}

		for _, friend := range strings.Split(friends, ",") {
			friend = strings.TrimSpace(friend)
			if friend == "" {
				continue
			}
			if err := describe(friend); err != nil {
				return err
			}
			if err := emit(store.NewTriple(Person(name), HasFriend, Person(friend))); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
