package selfupdate

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/grovecli/grove/internal/execshell"
	"github.com/grovecli/grove/internal/project"
	pathutils "github.com/grovecli/grove/internal/utils/path"
)

const (
	defaultTrustMaterialDirectoryConstant = "~/.groveconfig/gnupg"
	gitTagSubcommandConstant              = "tag"
	tagVerifyFlagConstant                 = "-v"
	gitDirectoryEnvironmentNameConstant   = "GIT_DIR"
	keyringEnvironmentNameConstant        = "GNUPGHOME"
	missingExecutorMessageConstant        = "verifier requires a git executor"
	missingTrustMaterialMessageConstant   = "trust material directory is absent; signature verification skipped"
	unsignedRevisionMessageConstant       = "fetched revision carries no signed tag; upgrade refused"
	untaggedRevisionMessageConstant       = "fetched revision is ahead of the nearest tag; upgrade refused"
	verificationFailedMessageConstant     = "tag signature verification failed; upgrade refused"
	trustDirectoryFieldConstant           = "trust_material_directory"
	repositoryFieldConstant               = "repository"
	tagFieldConstant                      = "tag"
	verifierOutputFieldConstant           = "verification_output"
)

// ErrGitExecutorNotConfigured indicates the verifier was built without a git executor.
var ErrGitExecutorNotConfigured = errors.New(missingExecutorMessageConstant)

var untaggedRevisionPattern = regexp.MustCompile(`-[0-9]+-g[0-9a-f]+$`)

// TrustPolicy controls how the verifier treats missing or failing trust material.
//
// AllowMissingTrustMaterial preserves the historical fail-open behavior for
// workstations without a keyring; a stricter deployment flips it to refuse.
type TrustPolicy struct {
	SkipVerification          bool
	AllowMissingTrustMaterial bool
	TrustMaterialDirectory    string
}

// DefaultTrustPolicy allows missing trust material and uses the user keyring directory.
func DefaultTrustPolicy() TrustPolicy {
	return TrustPolicy{AllowMissingTrustMaterial: true}
}

// ToolRepository is the view of the tool's own repository the verifier needs.
type ToolRepository interface {
	Name() string
	GitDirectory() string
	RevisionDescription(executionContext context.Context) (string, error)
}

// Verifier decides whether a fetched tool version may be adopted.
type Verifier struct {
	logger       *zap.Logger
	gitExecutor  project.GitExecutor
	policy       TrustPolicy
	homeExpander *pathutils.HomeExpander
}

// NewVerifier constructs a verifier applying the given trust policy.
func NewVerifier(logger *zap.Logger, gitExecutor project.GitExecutor, policy TrustPolicy) (*Verifier, error) {
	if gitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		logger:       logger,
		gitExecutor:  gitExecutor,
		policy:       policy,
		homeExpander: pathutils.NewHomeExpander(),
	}, nil
}

// Verify reports whether the fetched revision of the tool repository may be
// adopted. Refusals are never errors; the current run continues on the old
// version when the result is false.
func (verifier *Verifier) Verify(executionContext context.Context, toolRepository ToolRepository) (bool, error) {
	if verifier.policy.SkipVerification {
		return true, nil
	}

	trustMaterialDirectory := verifier.policy.TrustMaterialDirectory
	if len(trustMaterialDirectory) == 0 {
		trustMaterialDirectory = defaultTrustMaterialDirectoryConstant
	}
	trustMaterialDirectory = verifier.homeExpander.Expand(trustMaterialDirectory)

	if directoryInfo, statError := os.Stat(trustMaterialDirectory); statError != nil || !directoryInfo.IsDir() {
		verifier.logger.Warn(missingTrustMaterialMessageConstant,
			zap.String(trustDirectoryFieldConstant, trustMaterialDirectory),
			zap.String(repositoryFieldConstant, toolRepository.Name()),
		)
		return verifier.policy.AllowMissingTrustMaterial, nil
	}

	tagDescription, describeError := toolRepository.RevisionDescription(executionContext)
	if describeError != nil || len(tagDescription) == 0 {
		verifier.logger.Warn(unsignedRevisionMessageConstant, zap.String(repositoryFieldConstant, toolRepository.Name()))
		return false, nil
	}
	if untaggedRevisionPattern.MatchString(tagDescription) {
		verifier.logger.Warn(untaggedRevisionMessageConstant,
			zap.String(repositoryFieldConstant, toolRepository.Name()),
			zap.String(tagFieldConstant, tagDescription),
		)
		return false, nil
	}

	_, verificationError := verifier.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments: []string{gitTagSubcommandConstant, tagVerifyFlagConstant, tagDescription},
		EnvironmentVariables: map[string]string{
			gitDirectoryEnvironmentNameConstant: toolRepository.GitDirectory(),
			keyringEnvironmentNameConstant:      trustMaterialDirectory,
		},
	})
	if verificationError != nil {
		commandFailure := execshell.CommandFailedError{}
		if errors.As(verificationError, &commandFailure) {
			verifier.logger.Warn(verificationFailedMessageConstant,
				zap.String(repositoryFieldConstant, toolRepository.Name()),
				zap.String(tagFieldConstant, tagDescription),
				zap.String(verifierOutputFieldConstant, strings.TrimSpace(commandFailure.Result.StandardOutput+"\n"+commandFailure.Result.StandardError)),
			)
			return false, nil
		}
		return false, verificationError
	}

	return true, nil
}
