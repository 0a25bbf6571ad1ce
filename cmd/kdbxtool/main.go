package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/saylorsolutions/gokdbx/cmd/internal"
	"github.com/saylorsolutions/gokdbx/pkg/compositekey"
	"github.com/saylorsolutions/gokdbx/pkg/kdbx"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"
)

var version = "dev"

func main() {
	internal.Check(run(os.Args[1:]), "Error")
}

// run does all the work, so that deferred cleanup happens before main exits.
func run(args []string) error {
	var (
		helpFlag       bool
		versionFlag    bool
		verboseFlag    bool
		listFlag       bool
		createFlag     bool
		keyFileFlag    string
		passwordEnv    string
		otpFlag        string
		rekeyFlag      string
		keyFileGenFlag string
		exportXMLFlag  string
		importXMLFlag  string
		timeoutFlag    time.Duration
	)
	flags := flag.NewFlagSet("kdbxtool", flag.ContinueOnError)
	flags.BoolVarP(&helpFlag, "help", "h", false, "Prints this usage information.")
	flags.BoolVar(&versionFlag, "version", false, "Prints the version and exits.")
	flags.BoolVarP(&verboseFlag, "verbose", "v", false, "Logs stage timings to stderr.")
	flags.BoolVarP(&listFlag, "list", "l", false, "Prints the groups and entries of the database. Passwords are never printed.")
	flags.BoolVarP(&createFlag, "create", "c", false, "Creates a new empty database at FILE. FILE must not already exist.")
	flags.StringVarP(&keyFileFlag, "keyfile", "k", "", "Uses the key file at this path as a key factor.")
	flags.StringVar(&passwordEnv, "password-env", "", "Reads the password from this environment variable instead of prompting.")
	flags.StringVarP(&otpFlag, "otp", "o", "", "Prints the current one-time password of every entry with this title.")
	flags.StringVar(&rekeyFlag, "rekey", "", "Writes a copy of the database to this path with fresh default settings.")
	flags.StringVar(&keyFileGenFlag, "keyfile-gen", "", "Generates a new key file at this path. It must not already exist.")
	flags.StringVar(&exportXMLFlag, "export-xml", "", "Writes the database as UNENCRYPTED XML to this path. It must not already exist.")
	flags.StringVar(&importXMLFlag, "import-xml", "", "With --create, fills the new database from this XML export.")
	flags.DurationVar(&timeoutFlag, "timeout", 0, "Gives up on key derivation after this long. Zero means no limit.")
	flags.Usage = func() {
		fmt.Printf(`
kdbxtool inspects and maintains KeePass KDBX 4 databases.

USAGE:  kdbxtool [FLAGS] FILE

The password is prompted for on a terminal, read from the first line of stdin otherwise, or taken from the environment
variable named by --password-env. An empty password with --keyfile uses the key file alone.

FLAGS:
%s
`, flags.FlagUsages())
	}
	if len(args) == 0 {
		flags.Usage()
		return nil
	}
	if err := flags.Parse(args); err != nil {
		flags.Usage()
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if helpFlag {
		flags.Usage()
		return nil
	}
	if versionFlag {
		internal.Print("kdbxtool %s", version)
		return nil
	}
	if verboseFlag {
		kdbx.SetLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
			Level(zerolog.DebugLevel).
			With().Timestamp().Logger())
	}
	if importXMLFlag != "" && !createFlag {
		return errors.New("--import-xml requires --create")
	}

	if keyFileGenFlag != "" {
		if err := generateKeyFile(keyFileGenFlag); err != nil {
			return fmt.Errorf("failed to generate key file: %w", err)
		}
		internal.Echo("Generated key file %s", keyFileGenFlag)
		if flags.NArg() == 0 {
			return nil
		}
	}
	if flags.NArg() != 1 {
		return errors.New("expected exactly one FILE argument")
	}
	path := flags.Arg(0)

	ctx := context.Background()
	if timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeoutFlag)
		defer cancel()
	}

	pass, err := readPassword(passwordEnv, createFlag)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	key, err := buildKey(pass, keyFileFlag)
	wipe(pass)
	if err != nil {
		return fmt.Errorf("failed to build key: %w", err)
	}
	defer key.Wipe()

	if createFlag {
		if importXMLFlag != "" {
			if err := importDatabase(ctx, importXMLFlag, path, key); err != nil {
				return fmt.Errorf("failed to import %s: %w", importXMLFlag, err)
			}
			internal.Echo("Created %s from %s", path, importXMLFlag)
			return nil
		}
		if err := createDatabase(ctx, path, key); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		internal.Echo("Created %s", path)
		return nil
	}

	db, err := kdbx.OpenFile(ctx, path, key)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	switch {
	case listFlag:
		if err := listTree(os.Stdout, db); err != nil {
			return fmt.Errorf("failed to list database: %w", err)
		}
	case otpFlag != "":
		if err := printOTP(os.Stdout, db, otpFlag, time.Now()); err != nil {
			return fmt.Errorf("failed to generate one-time password: %w", err)
		}
	case rekeyFlag != "":
		if err := rekey(ctx, db, rekeyFlag, key); err != nil {
			return fmt.Errorf("failed to rekey database: %w", err)
		}
		internal.Echo("Wrote %s", rekeyFlag)
	case exportXMLFlag != "":
		if err := exportXML(db, exportXMLFlag); err != nil {
			return fmt.Errorf("failed to export database: %w", err)
		}
		internal.Echo("Wrote UNENCRYPTED %s", exportXMLFlag)
	default:
		internal.Echo("Opened %s: %d nodes, cipher %s", path, db.Tree.Len(), cipherName(db))
	}
	return nil
}

func readPassword(envName string, confirm bool) ([]byte, error) {
	if envName != "" {
		v, ok := os.LookupEnv(envName)
		if !ok {
			return nil, fmt.Errorf("environment variable %s is not set", envName)
		}
		return []byte(v), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}
	_, _ = fmt.Fprint(os.Stderr, "Password: ")
	pass, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	if confirm {
		_, _ = fmt.Fprint(os.Stderr, "Confirm password: ")
		again, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, err
		}
		if string(again) != string(pass) {
			return nil, fmt.Errorf("passwords don't match")
		}
	}
	return pass, nil
}

func buildKey(pass []byte, keyFilePath string) (*compositekey.Key, error) {
	var opts []compositekey.FactorOpt
	if len(pass) > 0 {
		opts = append(opts, compositekey.Password(pass))
	}
	if keyFilePath != "" {
		f, err := os.Open(keyFilePath)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = f.Close()
		}()
		opts = append(opts, compositekey.KeyFileReader(f))
	}
	return compositekey.New(opts...)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
