package skillmarket

import (
	"errors"
	"fmt"
	"time"

	"github.com/ruxir-ig/clawrrency/crypto"
)

// BuildManifest assembles a Manifest from files in the order given and
// computes each file's content hash. It does not assign the manifest's id;
// callers hash the result with crypto.HashCanonical (the artifact id is the
// manifest's canonical hash).
func BuildManifest(name, description, version string, typ SkillType, files []FileInput, deps []string, license, entryPoint, creator string) (Manifest, error) {
	if name == "" {
		return Manifest{}, errors.New("skill name required")
	}
	if len(files) == 0 {
		return Manifest{}, errors.New("skill must have at least one file")
	}
	if creator == "" {
		return Manifest{}, errors.New("creator pubkey required")
	}
	if _, err := crypto.PubKeyFromHex(creator); err != nil {
		return Manifest{}, fmt.Errorf("invalid creator pubkey: %w", err)
	}

	manifestFiles := make([]ManifestFile, len(files))
	for i, f := range files {
		if f.Path == "" {
			return Manifest{}, fmt.Errorf("file %d: path required", i)
		}
		manifestFiles[i] = ManifestFile{
			Path:        f.Path,
			ContentHash: crypto.Hash(f.Content),
		}
	}

	return Manifest{
		Name:         name,
		Description:  description,
		Version:      version,
		Type:         typ,
		Files:        manifestFiles,
		Dependencies: deps,
		License:      license,
		EntryPoint:   entryPoint,
		Creator:      creator,
	}, nil
}

// NewSkill builds a Skill from its files: the manifest, its canonical-hash
// id, and the stored file contents keyed by path.
func NewSkill(name, description, version string, typ SkillType, files []FileInput, deps []string, license, entryPoint, creator string) (*Skill, error) {
	manifest, err := BuildManifest(name, description, version, typ, files, deps, license, entryPoint, creator)
	if err != nil {
		return nil, err
	}
	id, err := crypto.HashCanonical(manifest)
	if err != nil {
		return nil, fmt.Errorf("hash manifest: %w", err)
	}

	contents := make(map[string][]byte, len(files))
	for _, f := range files {
		contents[f.Path] = f.Content
	}

	return &Skill{
		ID:        id,
		Manifest:  manifest,
		Contents:  contents,
		CreatedAt: time.Now().UnixMilli(),
	}, nil
}

// Verify recomputes the skill's manifest hash and every file's content hash
// from its stored contents and reports whether they still match — any
// mutation to a stored file, or to the manifest metadata, is detected.
func Verify(s *Skill) (bool, error) {
	id, err := crypto.HashCanonical(s.Manifest)
	if err != nil {
		return false, fmt.Errorf("hash manifest: %w", err)
	}
	if id != s.ID {
		return false, nil
	}
	for _, mf := range s.Manifest.Files {
		content, ok := s.Contents[mf.Path]
		if !ok {
			return false, nil
		}
		if crypto.Hash(content) != mf.ContentHash {
			return false, nil
		}
	}
	return true, nil
}
