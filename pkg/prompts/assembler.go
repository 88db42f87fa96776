// Package prompts assembles LLM prompts from plain-text templates with
// named placeholders. Assembly fails closed: a template never reaches a
// provider with unresolved mandatory placeholders in it.
package prompts

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wagerworks/sqlgen/pkg/apperrors"
	"github.com/wagerworks/sqlgen/pkg/models"
)

// TemplateStore supplies template text by key.
type TemplateStore interface {
	TemplateByKey(ctx context.Context, key string) (string, error)
}

// ExamplePair is one validated question/SQL pair for few-shot context.
type ExamplePair struct {
	Question   string
	SQL        string
	Intent     models.IntentType
	Complexity models.QueryComplexity
}

// Request carries everything placeholder resolvers may draw on.
type Request struct {
	Query           models.Query
	Intent          models.IntentType
	Entities        []models.EntityMention
	Schema          models.SchemaSelection
	Path            *models.JoinPath
	DomainRules     []models.Rule
	ComplianceRules []models.Rule
	Examples        []ExamplePair
}

// Resolver produces content for one placeholder. Mandatory resolvers
// must return non-empty content for assembly to succeed.
type Resolver struct {
	Mandatory bool
	Resolve   func(ctx context.Context, req Request) (string, error)
}

// ValidationFailure lists every unresolved mandatory placeholder.
type ValidationFailure struct {
	MissingKeys []string
	OverBudget  bool
	Size        int
	Budget      int
}

func (v *ValidationFailure) Error() string {
	if v.OverBudget {
		return fmt.Sprintf("prompt over budget: %d chars > %d", v.Size, v.Budget)
	}
	return fmt.Sprintf("unresolved placeholders: %s", strings.Join(v.MissingKeys, ", "))
}

var placeholderPattern = regexp.MustCompile(`\{([A-Z][A-Z0-9_]*)\}`)

// Assembler renders templates placeholder-by-placeholder.
type Assembler struct {
	store     TemplateStore
	resolvers map[string]Resolver
	maxChars  int
	logger    *zap.Logger
}

// NewAssembler registers the built-in resolvers. maxChars bounds the
// rendered prompt size.
func NewAssembler(store TemplateStore, maxChars int, logger *zap.Logger) *Assembler {
	a := &Assembler{
		store:     store,
		resolvers: make(map[string]Resolver),
		maxChars:  maxChars,
		logger:    logger.Named("prompts"),
	}
	a.Register("QUERY", Resolver{Mandatory: true, Resolve: resolveQuery})
	a.Register("SCHEMA_DEFINITION", Resolver{Mandatory: true, Resolve: resolveSchemaDefinition})
	a.Register("JOIN_PATH", Resolver{Resolve: resolveJoinPath})
	a.Register("BUSINESS_DOMAIN_CONTEXT", Resolver{Resolve: resolveBusinessContext})
	a.Register("DOMAIN_RULES", Resolver{Resolve: resolveDomainRules})
	a.Register("COMPLIANCE_CONTEXT", Resolver{Resolve: resolveComplianceRules})
	a.Register("EXAMPLES", Resolver{Resolve: resolveExamples})
	a.Register("INTENT", Resolver{Resolve: resolveIntent})
	return a
}

// Register adds or replaces a placeholder resolver.
func (a *Assembler) Register(key string, r Resolver) {
	a.resolvers[key] = r
}

// Assemble renders the template for templateKey. It returns a
// *ValidationFailure (wrapped in the prompt-validation error kind) when
// any mandatory placeholder is unresolved or the result exceeds the
// budget; unresolved keys are reported together, never silently dropped.
func (a *Assembler) Assemble(ctx context.Context, templateKey string, req Request) (string, error) {
	template, err := a.store.TemplateByKey(ctx, templateKey)
	if err != nil {
		return "", apperrors.New(apperrors.KindPromptValidation,
			fmt.Sprintf("load template %q", templateKey), err)
	}

	missing := make(map[string]bool)
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		key := token[1 : len(token)-1]
		resolver, ok := a.resolvers[key]
		if !ok {
			missing[key] = true
			return token
		}
		content, err := resolver.Resolve(ctx, req)
		if err != nil || (resolver.Mandatory && strings.TrimSpace(content) == "") {
			missing[key] = true
			return token
		}
		return content
	})

	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		failure := &ValidationFailure{MissingKeys: keys}
		return "", apperrors.New(apperrors.KindPromptValidation, "assembly failed", failure)
	}

	if a.maxChars > 0 && len(rendered) > a.maxChars {
		failure := &ValidationFailure{OverBudget: true, Size: len(rendered), Budget: a.maxChars}
		return "", apperrors.New(apperrors.KindPromptValidation, "assembly failed", failure)
	}

	a.logger.Debug("prompt assembled",
		zap.String("template", templateKey),
		zap.Int("chars", len(rendered)))
	return rendered, nil
}
