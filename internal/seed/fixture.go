package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is a hand-written data set loaded from YAML:
//
//	users:
//	  - name: Max
//	    email: max@example.com
//	    password: secret123
//	    status: Shipping things
//	    posts:
//	      - title: First post
//	        content: Hello there
type Fixture struct {
	Users []FixtureUser `yaml:"users"`
}

// FixtureUser is an account and the posts it authors.
type FixtureUser struct {
	Name     string        `yaml:"name"`
	Email    string        `yaml:"email"`
	Password string        `yaml:"password"`
	Status   string        `yaml:"status"`
	Posts    []FixturePost `yaml:"posts"`
}

// FixturePost is a single post. Every seeded post gets a generated image.
type FixturePost struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

// LoadFixture reads and parses a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(raw)
}

// ParseFixture decodes YAML and checks the required fields.
func ParseFixture(raw []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	for i, u := range f.Users {
		if u.Email == "" || u.Name == "" {
			return nil, fmt.Errorf("fixture user %d: name and email are required", i)
		}
	}
	return &f, nil
}
