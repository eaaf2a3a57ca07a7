// Package keyring stores host signing keys in the data directory.
//
// Each key is an nkey seed under keys/<public key>.nk with a metadata file
// beside it; keyring.json maps aliases to public keys and names the default.
package keyring

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nkeys"

	"github.com/gezibash/wasmbus/pkg/identity"
	"github.com/gezibash/wasmbus/pkg/identity/nkey"
)

const DefaultAlias = "default"

var (
	ErrNotFound      = errors.New("key not found")
	ErrAliasNotFound = errors.New("alias not found")
	ErrAlreadyExists = errors.New("key already exists")
	ErrNoDefault     = errors.New("no default key set")
)

type Keyring struct {
	dir string
}

type Key struct {
	Keypair   *nkey.Keypair
	PublicKey string // "N..." server public key
	Metadata  *Metadata
}

type Metadata struct {
	PublicKey string    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
}

type KeyInfo struct {
	PublicKey string    `json:"public_key"`
	Aliases   []string  `json:"aliases,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsDefault bool      `json:"is_default"`
}

func New(dir string) *Keyring {
	return &Keyring{dir: dir}
}

func (kr *Keyring) Generate(_ context.Context, alias string) (*Key, error) {
	kp, err := nkey.Generate()
	if err != nil {
		return nil, err
	}

	pub := kp.Encoded()
	if kr.keyExists(pub) {
		return nil, ErrAlreadyExists
	}
	return kr.store(kp, alias)
}

// Import stores an existing seed. Importing a stored key again only updates the alias.
func (kr *Keyring) Import(_ context.Context, seed string, alias string) (*Key, error) {
	kp, err := nkey.FromSeed(strings.TrimSpace(seed))
	if err != nil {
		return nil, err
	}
	return kr.store(kp, alias)
}

func (kr *Keyring) store(kp *nkey.Keypair, alias string) (*Key, error) {
	pub := kp.Encoded()
	meta := &Metadata{
		PublicKey: pub,
		CreatedAt: time.Now(),
	}

	if err := kr.saveKey(kp, pub, meta); err != nil {
		return nil, err
	}

	if alias != "" {
		if err := kr.SetAlias(alias, pub); err != nil {
			_ = kr.deleteKeyFiles(pub)
			return nil, err
		}
	}

	return &Key{Keypair: kp, PublicKey: pub, Metadata: meta}, nil
}

func (kr *Keyring) Load(_ context.Context, nameOrKey string) (*Key, error) {
	pub, err := kr.resolveToPublicKey(nameOrKey)
	if err != nil {
		return nil, err
	}

	kp, meta, err := kr.loadKey(pub)
	if err != nil {
		return nil, err
	}

	return &Key{Keypair: kp, PublicKey: pub, Metadata: meta}, nil
}

func (kr *Keyring) LoadDefault(ctx context.Context) (*Key, error) {
	kf, err := kr.loadKeyringFile()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoDefault
		}
		return nil, err
	}

	if kf.Default == "" {
		return nil, ErrNoDefault
	}

	return kr.Load(ctx, kf.Default)
}

func (kr *Keyring) LoadOrGenerate(ctx context.Context, alias string) (*Key, error) {
	key, err := kr.Load(ctx, alias)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrAliasNotFound) {
		return nil, err
	}
	return kr.Generate(ctx, alias)
}

// LoadSigner returns the key named by nameOrKey, or the default key when
// nameOrKey is empty.
func (kr *Keyring) LoadSigner(ctx context.Context, nameOrKey string) (identity.Signer, error) {
	var (
		key *Key
		err error
	)
	if nameOrKey != "" {
		key, err = kr.Load(ctx, nameOrKey)
	} else {
		key, err = kr.LoadDefault(ctx)
	}
	if err != nil {
		return nil, err
	}
	return key.Keypair, nil
}

func (kr *Keyring) List(_ context.Context) ([]*KeyInfo, error) {
	kf, err := kr.loadKeyringFile()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	aliasMap := make(map[string][]string)
	var defaultKey string
	if kf != nil {
		for alias, pub := range kf.Aliases {
			aliasMap[pub] = append(aliasMap[pub], alias)
		}
		if kf.Default != "" {
			defaultKey, _ = kr.resolveAliasToPublicKey(kf.Default, kf)
		}
	}

	pubs, err := kr.listKeyFiles()
	if err != nil {
		return nil, err
	}

	infos := make([]*KeyInfo, 0, len(pubs))
	for _, pub := range pubs {
		_, meta, err := kr.loadKey(pub)
		if err != nil {
			continue
		}
		infos = append(infos, &KeyInfo{
			PublicKey: meta.PublicKey,
			Aliases:   aliasMap[pub],
			CreatedAt: meta.CreatedAt,
			IsDefault: defaultKey != "" && defaultKey == pub,
		})
	}

	return infos, nil
}

func (kr *Keyring) Delete(_ context.Context, nameOrKey string) error {
	pub, err := kr.resolveToPublicKey(nameOrKey)
	if err != nil {
		return err
	}

	kf, err := kr.loadKeyringFile()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if kf != nil {
		changed := false
		if kf.Default != "" {
			if defaultKey, _ := kr.resolveAliasToPublicKey(kf.Default, kf); defaultKey == pub {
				kf.Default = ""
				changed = true
			}
		}
		for alias, id := range kf.Aliases {
			if id == pub {
				delete(kf.Aliases, alias)
				changed = true
			}
		}
		if changed {
			if err := kr.saveKeyringFile(kf); err != nil {
				return err
			}
		}
	}

	return kr.deleteKeyFiles(pub)
}

func (kr *Keyring) SetAlias(alias, pub string) error {
	pub = normalize(pub)

	if !kr.keyExists(pub) {
		return ErrNotFound
	}

	kf, err := kr.loadKeyringFile()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		kf = &keyringFile{Version: 1, Aliases: make(map[string]string)}
	}

	kf.Aliases[alias] = pub
	return kr.saveKeyringFile(kf)
}

func (kr *Keyring) SetDefault(alias string) error {
	kf, err := kr.loadKeyringFile()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		kf = &keyringFile{Version: 1, Aliases: make(map[string]string)}
	}

	if _, ok := kf.Aliases[alias]; !ok {
		return ErrAliasNotFound
	}

	kf.Default = alias
	return kr.saveKeyringFile(kf)
}

func (kr *Keyring) resolveToPublicKey(nameOrKey string) (string, error) {
	pub := normalize(nameOrKey)
	if isPublicKey(pub) && kr.keyExists(pub) {
		return pub, nil
	}

	kf, err := kr.loadKeyringFile()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrAliasNotFound
		}
		return "", err
	}

	return kr.resolveAliasToPublicKey(nameOrKey, kf)
}

func (kr *Keyring) resolveAliasToPublicKey(nameOrKey string, kf *keyringFile) (string, error) {
	if pub, ok := kf.Aliases[nameOrKey]; ok {
		if kr.keyExists(pub) {
			return pub, nil
		}
		return "", ErrNotFound
	}

	pub := normalize(nameOrKey)
	if isPublicKey(pub) && kr.keyExists(pub) {
		return pub, nil
	}

	return "", ErrAliasNotFound
}

func isPublicKey(s string) bool {
	return nkeys.IsValidPublicServerKey(s)
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
