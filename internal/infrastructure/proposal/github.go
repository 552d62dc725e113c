package proposal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"FRBScanner/internal/config"
	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
)

// ChannelGitHub names the pull-request review surface.
const ChannelGitHub = config.ChannelGitHub

const defaultGitHubAPI = "https://api.github.com"

// errStatus carries the HTTP status of a failed API call.
type errStatus struct {
	code int
	body string
}

func (e *errStatus) Error() string {
	return fmt.Sprintf("github api status %d: %s", e.code, e.body)
}

func statusOf(err error) int {
	var se *errStatus
	if errors.As(err, &se) {
		return se.code
	}
	return 0
}

// GitHubEmitter opens one pull request per proposed change against the
// catalog repository.
type GitHubEmitter struct {
	apiURL     string
	owner      string
	repo       string
	base       string
	token      string
	directory  string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.ProposalEmitter = (*GitHubEmitter)(nil)

// NewGitHubEmitter builds an emitter from configuration.
func NewGitHubEmitter(cfg config.GitHubConfig, client *http.Client, logger *slog.Logger) *GitHubEmitter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &GitHubEmitter{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		base:       cfg.BaseBranch,
		token:      cfg.Token,
		directory:  strings.Trim(cfg.Directory, "/"),
		httpClient: client,
		logger:     logger,
	}
	if e.apiURL == "" {
		e.apiURL = defaultGitHubAPI
	}
	if e.base == "" {
		e.base = "main"
	}
	if e.directory == "" {
		e.directory = "proposals"
	}
	return e
}

// Name identifies the channel in summaries.
func (g *GitHubEmitter) Name() string { return ChannelGitHub }

// Emit creates branch frb-update/<stem>, commits the summary and CSV, and opens
// a pull request. A branch that already carries an open pull request is reused.
func (g *GitHubEmitter) Emit(ctx context.Context, change domain.ProposedChange) (domain.ProposalHandle, error) {
	handle, err := g.emit(ctx, change)
	if err != nil {
		return domain.ProposalHandle{}, &domain.EmissionFailure{Channel: ChannelGitHub, Err: err}
	}
	return handle, nil
}

func (g *GitHubEmitter) emit(ctx context.Context, change domain.ProposedChange) (domain.ProposalHandle, error) {
	if g.owner == "" || g.repo == "" || g.token == "" {
		return domain.ProposalHandle{}, errors.New("github emitter misconfigured")
	}
	files, err := Render(change)
	if err != nil {
		return domain.ProposalHandle{}, err
	}
	branch := files.BranchName()
	log := g.logger.With("branch", branch)

	baseSHA, err := g.refSHA(ctx, g.base)
	if err != nil {
		return domain.ProposalHandle{}, fmt.Errorf("resolve base branch %s: %w", g.base, err)
	}

	created, err := g.createBranch(ctx, branch, baseSHA)
	if err != nil {
		return domain.ProposalHandle{}, fmt.Errorf("create branch: %w", err)
	}
	if !created {
		pr, found, err := g.findOpenPull(ctx, branch)
		if err != nil {
			return domain.ProposalHandle{}, fmt.Errorf("look up existing pull request: %w", err)
		}
		if found {
			log.Info("reusing open pull request", "number", pr.Number)
			return domain.ProposalHandle{
				Channel: ChannelGitHub,
				ID:      strconv.Itoa(pr.Number),
				URL:     pr.HTMLURL,
				Branch:  branch,
				Reused:  true,
			}, nil
		}
		log.Info("branch exists without an open pull request, updating it")
	}

	message := Title(change)
	if err := g.putFile(ctx, branch, path.Join(g.directory, files.CSVName()), files.CSV, message); err != nil {
		return domain.ProposalHandle{}, err
	}
	if err := g.putFile(ctx, branch, path.Join(g.directory, files.MarkdownName()), files.Markdown, message); err != nil {
		return domain.ProposalHandle{}, err
	}

	pr, err := g.openPull(ctx, branch, Title(change), change.Summary)
	if err != nil {
		return domain.ProposalHandle{}, fmt.Errorf("open pull request: %w", err)
	}
	log.Info("pull request opened", "number", pr.Number, "url", pr.HTMLURL)
	return domain.ProposalHandle{
		Channel: ChannelGitHub,
		ID:      strconv.Itoa(pr.Number),
		URL:     pr.HTMLURL,
		Branch:  branch,
	}, nil
}

type gitRef struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type pullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

func (g *GitHubEmitter) repoPath(parts ...string) string {
	return "/repos/" + url.PathEscape(g.owner) + "/" + url.PathEscape(g.repo) + "/" + strings.Join(parts, "/")
}

func (g *GitHubEmitter) refSHA(ctx context.Context, branch string) (string, error) {
	var ref gitRef
	if err := g.do(ctx, http.MethodGet, g.repoPath("git/ref/heads", branch), nil, &ref); err != nil {
		return "", err
	}
	if ref.Object.SHA == "" {
		return "", errors.New("empty ref sha")
	}
	return ref.Object.SHA, nil
}

// createBranch reports false when the branch already exists.
func (g *GitHubEmitter) createBranch(ctx context.Context, branch, sha string) (bool, error) {
	payload := map[string]string{"ref": "refs/heads/" + branch, "sha": sha}
	err := g.do(ctx, http.MethodPost, g.repoPath("git/refs"), payload, nil)
	if statusOf(err) == http.StatusUnprocessableEntity {
		return false, nil
	}
	return err == nil, err
}

func (g *GitHubEmitter) findOpenPull(ctx context.Context, branch string) (pullRequest, bool, error) {
	q := url.Values{}
	q.Set("state", "open")
	q.Set("head", g.owner+":"+branch)
	q.Set("base", g.base)
	var pulls []pullRequest
	if err := g.do(ctx, http.MethodGet, g.repoPath("pulls")+"?"+q.Encode(), nil, &pulls); err != nil {
		return pullRequest{}, false, err
	}
	if len(pulls) == 0 {
		return pullRequest{}, false, nil
	}
	return pulls[0], true, nil
}

func (g *GitHubEmitter) putFile(ctx context.Context, branch, filePath string, content []byte, message string) error {
	contentsPath := g.repoPath("contents", filePath)

	// A retried run may find the file already committed on the branch.
	var existing struct {
		SHA string `json:"sha"`
	}
	err := g.do(ctx, http.MethodGet, contentsPath+"?ref="+url.QueryEscape(branch), nil, &existing)
	if err != nil && statusOf(err) != http.StatusNotFound {
		return fmt.Errorf("stat %s: %w", filePath, err)
	}

	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  branch,
	}
	if existing.SHA != "" {
		payload["sha"] = existing.SHA
	}
	if err := g.do(ctx, http.MethodPut, contentsPath, payload, nil); err != nil {
		return fmt.Errorf("commit %s: %w", filePath, err)
	}
	return nil
}

func (g *GitHubEmitter) openPull(ctx context.Context, branch, title, body string) (pullRequest, error) {
	payload := map[string]any{
		"title": title,
		"head":  branch,
		"base":  g.base,
		"body":  body,
	}
	var pr pullRequest
	if err := g.do(ctx, http.MethodPost, g.repoPath("pulls"), payload, &pr); err != nil {
		return pullRequest{}, err
	}
	return pr, nil
}

func (g *GitHubEmitter) do(ctx context.Context, method, apiPath string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.apiURL+apiPath, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, apiPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &errStatus{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", apiPath, err)
	}
	return nil
}
