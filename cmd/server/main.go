// Command server is the drawing database's server launcher: it can
// generate and lock the server's key material, add a user able to unlock
// that material, or load a user's keys and run the live tick loop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/redis/go-redis/v9"

	"github.com/ocx/drawserver/internal/auth"
	"github.com/ocx/drawserver/internal/catalog"
	"github.com/ocx/drawserver/internal/config"
	"github.com/ocx/drawserver/internal/cryptoutil"
	"github.com/ocx/drawserver/internal/database"
	"github.com/ocx/drawserver/internal/dispatch"
	"github.com/ocx/drawserver/internal/logging"
	"github.com/ocx/drawserver/internal/metrics"
	"github.com/ocx/drawserver/internal/session"
	"github.com/ocx/drawserver/internal/wire"
)

// runMode selects which of the launcher's jobs this invocation runs.
type runMode int

const (
	modeNone runMode = iota
	modeServer
	modeSetup
	modeAddUser
	modeHelp
)

var usernamePattern = regexp.MustCompile(`^[a-z]+$`)

// refreshRate is the tick period for the connection-serving loop, 16Hz
// (~62.5ms).
const refreshRate = time.Second / 16

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		mode    = modeNone
		dev     bool
		user    = "root"
		newUser string
		metaDir = "."
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--help", "-h":
			mode = modeHelp
		case "--setup":
			if !claimMode(&mode, modeSetup) {
				return argError()
			}
		case "--server":
			if !claimMode(&mode, modeServer) {
				return argError()
			}
		case "--dev":
			dev = true
		case "--add-user":
			if !claimMode(&mode, modeAddUser) {
				return argError()
			}
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "ERROR: --add-user requires a username")
				return -1
			}
			newUser = args[i]
			if !usernamePattern.MatchString(newUser) {
				fmt.Fprintln(os.Stderr, "ERROR: invalid username for --add-user, use lowercase letters only")
				return -1
			}
		case "--meta":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "ERROR: --meta requires a path")
				return -1
			}
			metaDir = args[i]
		case "--user":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "ERROR: --user requires a username")
				return -1
			}
			user = args[i]
		}
	}

	if v := os.Getenv("OCX_DRAW_META"); v != "" && metaDir == "." {
		metaDir = v
	}

	if dev && mode != modeServer {
		fmt.Fprintln(os.Stderr, "ERROR: only the server can be in dev mode")
		return -1
	}

	switch mode {
	case modeServer:
		if err := runServer(metaDir, user, dev); err != nil {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
			return -1
		}
		return 0
	case modeSetup:
		if err := setupServerKeys(metaDir); err != nil {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
			return -1
		}
		return 0
	case modeAddUser:
		if err := addUser(newUser, metaDir, user); err != nil {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
			return -1
		}
		return 0
	case modeHelp:
		printHelp()
		return 0
	default:
		fmt.Fprintln(os.Stderr, "ERROR: no mode selected, use --help for more information")
		return -1
	}
}

func claimMode(mode *runMode, want runMode) bool {
	if *mode != modeNone {
		fmt.Fprintln(os.Stderr, "ERROR: you can only use one mode at a time")
		return false
	}
	*mode = want
	return true
}

func argError() int {
	fmt.Fprintln(os.Stderr, "Invalid arguments. Use --help for more information.")
	return -1
}

func printHelp() {
	fmt.Println("Database Manager Help")
	fmt.Println("Flags:")
	fmt.Println("  --server            run the server")
	fmt.Println("  --dev               run the server against the dev database")
	fmt.Println("  --setup             generate and save the server key files; does not start the server")
	fmt.Println("  --add-user USER     add a new admin user able to start the server and unlock the keys")
	fmt.Println("                      --user specifies the existing user to authenticate the new one against")
	fmt.Println("  --meta PATH         path to the directory containing serverMeta.json")
	fmt.Println("  --user USER         username to unlock the key files with, defaults to root")
	fmt.Println("  --help, -h          print this help message")
}

// keySetupMeta is the subset of serverMeta.json key setup and user
// management need; unlike config.Load it does not require serverPort or
// backupPath.
type keySetupMeta struct {
	KeyPath              string `json:"keyPath"`
	DatabasePasswordPath string `json:"databasePasswordPath"`
}

func loadKeySetupMeta(metaDir string) (keySetupMeta, error) {
	path := filepath.Join(metaDir, "serverMeta.json")
	buf, err := os.ReadFile(path)
	if err != nil {
		return keySetupMeta{}, fmt.Errorf("meta file %s does not exist", path)
	}
	var m keySetupMeta
	if err := json.Unmarshal(buf, &m); err != nil {
		return keySetupMeta{}, fmt.Errorf("failed to load %s, check the JSON is valid", path)
	}
	if m.KeyPath == "" {
		return keySetupMeta{}, fmt.Errorf("could not find 'keyPath' in meta file")
	}
	if m.DatabasePasswordPath == "" {
		return keySetupMeta{}, fmt.Errorf("could not find 'databasePasswordPath' in meta file")
	}
	return m, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// setupServerKeys generates the server's two RSA keypairs and locks the
// private halves under one or more operator-chosen passwords.
func setupServerKeys(metaDir string) error {
	meta, err := loadKeySetupMeta(metaDir)
	if err != nil {
		return err
	}

	dbPassword, err := promptPassword("Enter database password: ")
	if err != nil {
		return err
	}

	fmt.Println("Generating RSA key pairs for the server and signatures (this may take a moment)...")
	serverKeys, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate server keypair: %w", err)
	}
	sigKeys, err := cryptoutil.GenerateSignatureKeyPair()
	if err != nil {
		return fmt.Errorf("generate signature keypair: %w", err)
	}
	fmt.Println("Keys generated.")
	fmt.Println("Enter one or more passwords to save the encryption key files with.")
	fmt.Println("Any one of these passwords will be needed to decrypt the key files for future use.")

	if err := os.MkdirAll(filepath.Join(meta.KeyPath, "server"), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(meta.KeyPath, "signature"), 0o755); err != nil {
		return err
	}

	pw, err := promptPassword("Enter a root password to secure the encryption keys under: ")
	if err != nil {
		return err
	}
	if err := saveUserKeys(meta, "root", pw, serverKeys, sigKeys, dbPassword); err != nil {
		return err
	}
	if err := cryptoutil.WritePublicKey(filepath.Join(meta.KeyPath, "server/server_key.pub"), serverKeys.Public); err != nil {
		return err
	}
	if err := cryptoutil.WritePublicKey(filepath.Join(meta.KeyPath, "signature/signature.pub"), sigKeys.Public); err != nil {
		return err
	}
	fmt.Println("Keys saved successfully for user root.")

	for {
		fmt.Print("\nWould you like to enter another password? [y/N] ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" && response != "yes" {
			break
		}

		fmt.Print("Enter a username (lowercase letters only) to associate this password with: ")
		var uname string
		fmt.Scanln(&uname)
		if !usernamePattern.MatchString(uname) {
			fmt.Fprintln(os.Stderr, "Invalid username. Use lowercase letters only.")
			continue
		}

		pw, err := promptPassword(fmt.Sprintf("Enter a password for %s: ", uname))
		if err != nil {
			return err
		}
		if err := saveUserKeys(meta, uname, pw, serverKeys, sigKeys, dbPassword); err != nil {
			return err
		}
		fmt.Printf("Keys saved successfully for user %s.\n", uname)
	}

	return nil
}

func saveUserKeys(meta keySetupMeta, user, password string, serverKeys cryptoutil.KeyPair, sigKeys cryptoutil.SignatureKeyPair, dbPassword string) error {
	pwHash := cryptoutil.HashPassword(password)

	lockedServer, err := cryptoutil.LockPrivateKey(pwHash, serverKeys.Private)
	if err != nil {
		return err
	}
	if err := cryptoutil.WriteLocked(filepath.Join(meta.KeyPath, "server/server_key_"+user+".pri"), lockedServer); err != nil {
		return err
	}

	lockedSig, err := cryptoutil.LockPrivateKey(pwHash, sigKeys.Private)
	if err != nil {
		return err
	}
	if err := cryptoutil.WriteLocked(filepath.Join(meta.KeyPath, "signature/signature_"+user+".pri"), lockedSig); err != nil {
		return err
	}

	lockedPW, err := cryptoutil.LockData(pwHash, []byte(dbPassword))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(meta.DatabasePasswordPath, 0o755); err != nil {
		return err
	}
	return cryptoutil.WriteLocked(filepath.Join(meta.DatabasePasswordPath, "encrypted_"+user+".pass"), lockedPW)
}

// addUser unlocks an existing user's key material and re-locks it under a
// new username/password pair.
func addUser(newUser, metaDir, authUser string) error {
	meta, err := loadKeySetupMeta(metaDir)
	if err != nil {
		return err
	}

	serverPriPath := filepath.Join(meta.KeyPath, "server/server_key_"+authUser+".pri")
	serverPubPath := filepath.Join(meta.KeyPath, "server/server_key.pub")
	sigPriPath := filepath.Join(meta.KeyPath, "signature/signature_"+authUser+".pri")
	sigPubPath := filepath.Join(meta.KeyPath, "signature/signature.pub")

	for _, p := range []string{serverPriPath, serverPubPath, sigPriPath, sigPubPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("there is no key file associated with user %s", authUser)
		}
	}

	pw, err := promptPassword(fmt.Sprintf("Enter the password for %s: ", authUser))
	if err != nil {
		return err
	}
	pwHash := cryptoutil.HashPassword(pw)

	lockedServerPri, err := cryptoutil.ReadLocked(serverPriPath)
	if err != nil {
		return err
	}
	serverPri, err := cryptoutil.UnlockPrivateKey(pwHash, lockedServerPri)
	if err != nil {
		return fmt.Errorf("invalid password for user %s", authUser)
	}
	serverPub, err := cryptoutil.ReadPublicKey(serverPubPath)
	if err != nil {
		return err
	}
	lockedSigPri, err := cryptoutil.ReadLocked(sigPriPath)
	if err != nil {
		return err
	}
	sigPri, err := cryptoutil.UnlockPrivateKey(pwHash, lockedSigPri)
	if err != nil {
		return fmt.Errorf("invalid password for user %s", authUser)
	}
	sigPub, err := cryptoutil.ReadPublicKey(sigPubPath)
	if err != nil {
		return err
	}
	lockedPW, err := cryptoutil.ReadLocked(filepath.Join(meta.DatabasePasswordPath, "encrypted_"+authUser+".pass"))
	if err != nil {
		return err
	}
	dbPassword, err := cryptoutil.UnlockData(pwHash, lockedPW)
	if err != nil {
		return fmt.Errorf("invalid password for user %s", authUser)
	}

	if serverPri.N.Cmp(serverPub.N) != 0 || sigPri.N.Cmp(sigPub.N) != 0 {
		return fmt.Errorf("invalid password for user %s", authUser)
	}

	if !usernamePattern.MatchString(newUser) {
		return fmt.Errorf("invalid username, use lowercase letters only")
	}
	newPW, err := promptPassword(fmt.Sprintf("Enter a password for %s: ", newUser))
	if err != nil {
		return err
	}

	serverKeys := cryptoutil.KeyPair{Public: serverPub, Private: serverPri}
	sigKeys := cryptoutil.SignatureKeyPair{Public: sigPub, Private: sigPri}
	if err := saveUserKeys(meta, newUser, newPW, serverKeys, sigKeys, string(dbPassword)); err != nil {
		return err
	}
	fmt.Printf("Keys saved successfully for user %s.\n", newUser)
	return nil
}

// runServer loads a user's key material, wires up the catalogs, store,
// JWKS-backed validator and dispatcher, and runs the tick loop until a
// signal asks it to stop.
func runServer(metaDir, user string, dev bool) error {
	metaPath := filepath.Join(metaDir, "serverMeta.json")
	meta, err := config.Load(metaPath)
	if err != nil {
		return err
	}

	serverPriPath := filepath.Join(meta.KeyPath, "server/server_key_"+user+".pri")
	serverPubPath := filepath.Join(meta.KeyPath, "server/server_key.pub")
	sigPriPath := filepath.Join(meta.KeyPath, "signature/signature_"+user+".pri")
	sigPubPath := filepath.Join(meta.KeyPath, "signature/signature.pub")
	for _, p := range []string{serverPriPath, serverPubPath, sigPriPath, sigPubPath} {
		if _, statErr := os.Stat(p); statErr != nil {
			return fmt.Errorf("there is no key file associated with user %s", user)
		}
	}

	pw, err := promptPassword(fmt.Sprintf("Enter the password for %s: ", user))
	if err != nil {
		return err
	}
	pwHash := cryptoutil.HashPassword(pw)

	lockedServerPri, err := cryptoutil.ReadLocked(serverPriPath)
	if err != nil {
		return err
	}
	serverPri, err := cryptoutil.UnlockPrivateKey(pwHash, lockedServerPri)
	if err != nil {
		return fmt.Errorf("invalid password for user %s", user)
	}
	serverPub, err := cryptoutil.ReadPublicKey(serverPubPath)
	if err != nil {
		return err
	}
	lockedSigPri, err := cryptoutil.ReadLocked(sigPriPath)
	if err != nil {
		return err
	}
	sigPri, err := cryptoutil.UnlockPrivateKey(pwHash, lockedSigPri)
	if err != nil {
		return fmt.Errorf("invalid password for user %s", user)
	}
	sigPub, err := cryptoutil.ReadPublicKey(sigPubPath)
	if err != nil {
		return err
	}
	if serverPri.N.Cmp(serverPub.N) != 0 || sigPri.N.Cmp(sigPub.N) != 0 {
		return fmt.Errorf("invalid password for user %s", user)
	}

	lockedPW, err := cryptoutil.ReadLocked(filepath.Join(meta.DatabasePasswordPath, "encrypted_"+user+".pass"))
	if err != nil {
		return err
	}
	dbPassword, err := cryptoutil.UnlockData(pwHash, lockedPW)
	if err != nil {
		return fmt.Errorf("invalid password for user %s", user)
	}

	log := logging.Default()
	if meta.LogFile != "" {
		f, ferr := os.OpenFile(meta.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if ferr != nil {
			return fmt.Errorf("open log file: %w", ferr)
		}
		defer f.Close()
		log.SetStreams(f, nil, nil)
		slog.Info("logging to file", "path", meta.LogFile)
	}
	if meta.ChangelogFile != "" {
		f, ferr := os.OpenFile(meta.ChangelogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if ferr != nil {
			return fmt.Errorf("open changelog file: %w", ferr)
		}
		defer f.Close()
		log.SetStreams(nil, f, nil)
		slog.Info("logging changes to file", "path", meta.ChangelogFile)
	}
	if meta.ErrorFile != "" {
		f, ferr := os.OpenFile(meta.ErrorFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if ferr != nil {
			return fmt.Errorf("open error file: %w", ferr)
		}
		defer f.Close()
		log.SetStreams(nil, nil, f)
		slog.Info("logging errors to file", "path", meta.ErrorFile)
	}

	var keys auth.JWKSource
	if meta.JWKSURL != "" {
		keys = auth.NewRemoteKeySet(meta.JWKSURL, 15*time.Minute)
	} else {
		keys = auth.NewStaticKeySet(nil)
	}
	validator := auth.NewJWTValidator(keys)
	tokens := auth.NewRepeatTokenTable()

	var dsn string
	if dev {
		devPW, perr := promptPassword("Dev Password: ")
		if perr != nil {
			return perr
		}
		dsn = fmt.Sprintf("host=%s dbname=%s user=%s password=%s sslmode=disable",
			meta.DevDatabaseHost, meta.DevDatabaseName, meta.DevDatabaseUser, devPW)
	} else {
		dsn = fmt.Sprintf("host=%s dbname=%s user=%s password=%s sslmode=disable",
			meta.DatabaseHost, meta.DatabaseName, meta.DatabaseUser, string(dbPassword))
	}
	store, err := database.Open(dsn)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	listen := wire.NewListenSocket()
	if res := listen.Bind(meta.ServerPort, ""); res != wire.Success {
		return fmt.Errorf("bind port %d: %v", meta.ServerPort, res)
	}
	if res := listen.Listen(); res != wire.Success {
		return fmt.Errorf("listen: %v", res)
	}
	defer listen.Close()

	manager := session.NewManager(
		cryptoutil.KeyPair{Public: serverPub, Private: serverPri},
		cryptoutil.SignatureKeyPair{Public: sigPub, Private: sigPri},
		validator, tokens, log,
	)

	var cache catalog.HotCache
	if meta.RedisAddr != "" {
		cache = catalog.NewRedisCache(redis.NewClient(&redis.Options{Addr: meta.RedisAddr}))
		slog.Info("catalog hot cache attached", "addr", meta.RedisAddr)
	}

	d := dispatch.New(dispatch.Config{
		Listen:      listen,
		Manager:     manager,
		Store:       store,
		Tokens:      tokens,
		Log:         log,
		Metrics:     metrics.New(),
		BackupDir:   meta.BackupPath,
		RefreshRate: refreshRate,
		Cache:       cache,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("listening", "port", meta.ServerPort)
	if dev {
		slog.Warn("DEV MODE: serving the development database")
	}
	d.Run(ctx)
	return nil
}
