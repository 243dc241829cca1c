package vip

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config controls how a program is run and displayed.
type Config struct {
	TickRate        TickRate `toml:"tick_rate"`
	DisableGhosting bool     `toml:"disable_ghosting"`
	RestartOnEnd    bool     `toml:"restart_on_end"`
	PrimaryColor    Color    `toml:"primary_color"`
	SecondaryColor  Color    `toml:"secondary_color"`

	// Theme, if set, names an entry in Themes and overrides the colours.
	Theme string `toml:"theme"`

	// SharedInput applies key events as they happen instead of at
	// instruction boundaries.
	SharedInput bool `toml:"shared_input"`

	// Trace records executed instructions and logs them when the
	// program halts, along with the instruction rate once a second.
	Trace bool `toml:"trace"`
}

const DefaultTickRate TickRate = 1000

var (
	DefaultPrimary   = Color{0x8d, 0xc6, 0xff}
	DefaultSecondary = Color{0x00, 0x00, 0x00}
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		TickRate:       DefaultTickRate,
		PrimaryColor:   DefaultPrimary,
		SecondaryColor: DefaultSecondary,
	}
}

// LoadConfig reads a TOML configuration file. Settings missing from the
// file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return Config{}, fmt.Errorf("loading config %s: unknown setting %q", path, keys[0].String())
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	return c, nil
}

var ErrUnknownTheme = errors.New("unknown theme")

func (c *Config) Validate() error {
	if _, ok := Themes[c.Theme]; c.Theme != "" && !ok {
		return fmt.Errorf("%w %q (have %s)", ErrUnknownTheme, c.Theme, strings.Join(ThemeNames(), ", "))
	}
	return nil
}

// Colors returns the primary and secondary colours, taking the theme into
// account.
func (c *Config) Colors() (primary, secondary Color) {
	if t, ok := Themes[c.Theme]; ok {
		return t.Primary, t.Secondary
	}
	return c.PrimaryColor, c.SecondaryColor
}

// TickRate is the number of instructions executed per second.
// Zero or less means run as fast as possible.
type TickRate int

const Uncapped TickRate = 0

func (t TickRate) Capped() bool { return t > 0 }

func (t TickRate) String() string {
	if !t.Capped() {
		return "uncapped"
	}
	return strconv.Itoa(int(t))
}

// Set implements flag.Value.
func (t *TickRate) Set(s string) error { return t.UnmarshalText([]byte(s)) }

func (t TickRate) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TickRate) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.EqualFold(s, "uncapped") {
		*t = Uncapped
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid tick rate %q: want a number or \"uncapped\"", s)
	}
	*t = TickRate(n)
	return nil
}

// Color is an RGB colour written as "#rrggbb".
type Color struct {
	R, G, B byte
}

func ParseColor(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return Color{}, fmt.Errorf("invalid colour %q: want #rrggbb", s)
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return Color{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return Color{b[0], b[1], b[2]}, nil
}

func (c Color) String() string {
	return fmt.Sprintf("#%.2x%.2x%.2x", c.R, c.G, c.B)
}

func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Color) UnmarshalText(b []byte) error {
	v, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

type Theme struct {
	Primary, Secondary Color
}

// Themes are the built-in colour schemes.
var Themes = map[string]Theme{
	"default":           {DefaultPrimary, DefaultSecondary},
	"palette1":          {Color{0x02, 0x34, 0x3f}, Color{0xf0, 0xed, 0xcc}},
	"palette1-inverted": {Color{0xf0, 0xed, 0xcc}, Color{0x02, 0x34, 0x3f}},
	"palette2":          {Color{0xff, 0xd6, 0x62}, Color{0x00, 0x53, 0x9c}},
	"palette2-inverted": {Color{0x00, 0x53, 0x9c}, Color{0xff, 0xd6, 0x62}},
	"palette3":          {Color{0xff, 0xff, 0xff}, Color{0xf9, 0x57, 0x00}},
	"palette3-inverted": {Color{0xf9, 0x57, 0x00}, Color{0xff, 0xff, 0xff}},
}

func ThemeNames() []string {
	var names []string
	for n := range Themes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
