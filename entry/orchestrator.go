// ABOUTME: Entry orchestration: parallel fetch, default-team resolution, removal diffs
// ABOUTME: Fetch plans everything; Commit writes one atomic batch

package entry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/2389/chatsync/client"
	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/reconcile"
	"github.com/2389/chatsync/session"
	"github.com/2389/chatsync/store"
)

// ErrNoDatabase means no session database is registered for the server.
var ErrNoDatabase = errors.New("no database registered for server")

// Orchestrator computes and persists the initial sync snapshot for one
// server session.
type Orchestrator struct {
	store  *store.SQLiteStore
	client *client.Client
	engine *reconcile.Engine
	logger *slog.Logger
}

// NewOrchestrator builds an orchestrator over one server's store and
// REST client.
func NewOrchestrator(st *store.SQLiteStore, cl *client.Client) *Orchestrator {
	return &Orchestrator{
		store:  st,
		client: cl,
		engine: reconcile.NewEngine(st, cl),
		logger: slog.Default().With("component", "entry"),
	}
}

// ForServer resolves the orchestrator for a registered server session.
func ForServer(reg *session.Registry, serverURL string) (*Orchestrator, error) {
	sess := reg.Get(serverURL)
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDatabase, serverURL)
	}
	return NewOrchestrator(sess.Store, sess.Client), nil
}

// Result is the orchestrator's plan: what to render immediately plus the
// prepared-but-uncommitted write set.
type Result struct {
	InitialTeamID    string
	InitialChannelID string
	Teams            []model.Team
	Channels         *client.MyChannels
	Preferences      []model.Preference
	Me               *model.User
	RemoveTeamIDs    []string
	RemoveChannelIDs []string

	// Batch holds every prepared write. Nothing is committed until the
	// caller invokes Commit, so failed fetches leave no partial state.
	Batch *store.Batch
}

// fetchSet collects the parallel remote fetch results.
type fetchSet struct {
	teams       []model.Team
	memberships []model.TeamMembership
	prefs       []model.Preference
	me          *model.User
	channels    *client.MyChannels

	teamsErr, membershipsErr, prefsErr, meErr, channelsErr error
}

// Fetch plans the entry snapshot. since is the reconciliation watermark;
// zero means full cold bootstrap. No local writes happen here.
func (o *Orchestrator) Fetch(ctx context.Context, since int64) (*Result, error) {
	return o.fetch(ctx, since, false)
}

// FetchUpgrade plans a full cold bootstrap for a database migrated from
// a legacy schema. The stored watermark is ignored and the
// current-user-id row is written unconditionally, so the migrated data
// gets its owner backfilled in the same atomic batch as the snapshot.
func (o *Orchestrator) FetchUpgrade(ctx context.Context) (*Result, error) {
	return o.fetch(ctx, 0, true)
}

func (o *Orchestrator) fetch(ctx context.Context, since int64, upgrade bool) (*Result, error) {
	currentTeamID, err := o.store.GetCurrentTeamID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading current team: %w", err)
	}

	fetched := o.fetchEntryData(ctx, currentTeamID, since)
	if err := firstError(fetched.teamsErr, fetched.membershipsErr, fetched.prefsErr, fetched.meErr); err != nil {
		return nil, err
	}

	res := &Result{
		Teams:       fetched.teams,
		Channels:    fetched.channels,
		Preferences: fetched.prefs,
		Me:          fetched.me,
		Batch:       store.NewBatch(),
	}

	teamOps, removeTeamIDs, err := o.engine.PlanTeams(ctx, fetched.teams, fetched.memberships)
	if err != nil {
		return nil, err
	}
	res.Batch.Add(teamOps...)
	res.RemoveTeamIDs = removeTeamIDs

	// An empty team list with no transport error is authoritative: the
	// user has been removed from every team.
	if len(fetched.teams) == 0 {
		localTeamIDs, err := o.store.QueryMyTeamIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying local teams for purge: %w", err)
		}
		res.RemoveTeamIDs = append(res.RemoveTeamIDs, localTeamIDs...)
	}

	initialTeamID, channels, err := o.resolveInitialTeam(ctx, currentTeamID, fetched, res)
	if err != nil {
		return nil, err
	}
	res.InitialTeamID = initialTeamID
	if channels != nil {
		res.Channels = channels
	}

	if res.InitialTeamID != "" && res.Channels != nil {
		chOps, removeChannelIDs, err := o.engine.PlanChannels(ctx, res.InitialTeamID, res.Channels.Channels, res.Channels.Memberships)
		if err != nil {
			return nil, err
		}
		res.Batch.Add(chOps...)
		res.RemoveChannelIDs = removeChannelIDs

		removeChOps, err := o.engine.PlanRemoveChannels(ctx, removeChannelIDs)
		if err != nil {
			return nil, err
		}
		res.Batch.Add(removeChOps...)

		res.InitialChannelID, err = o.resolveInitialChannel(ctx, res.Channels)
		if err != nil {
			return nil, err
		}
	}

	removeOps, err := o.engine.PlanRemoveTeams(ctx, res.RemoveTeamIDs)
	if err != nil {
		return nil, err
	}
	res.Batch.Add(removeOps...)

	prefOps, err := o.engine.PlanPreferences(ctx, fetched.prefs)
	if err != nil {
		return nil, err
	}
	res.Batch.Add(prefOps...)

	if fetched.me != nil {
		meOps, err := o.engine.PlanUsers(ctx, []model.User{*fetched.me})
		if err != nil {
			return nil, err
		}
		res.Batch.Add(meOps...)

		if upgrade {
			res.Batch.Add(o.store.PrepareForceSetSystemValue(model.SystemCurrentUserID, fetched.me.ID))
		} else {
			userOp, err := o.store.PrepareSetSystemValue(ctx, model.SystemCurrentUserID, fetched.me.ID)
			if err != nil {
				return nil, err
			}
			res.Batch.Add(userOp)
		}
	}

	if res.InitialTeamID != "" {
		teamOp, err := o.store.PrepareSetSystemValue(ctx, model.SystemCurrentTeamID, res.InitialTeamID)
		if err != nil {
			return nil, err
		}
		res.Batch.Add(teamOp)
	}

	return res, nil
}

// Commit writes the plan atomically.
func (o *Orchestrator) Commit(ctx context.Context, res *Result) error {
	if err := o.store.Commit(ctx, res.Batch); err != nil {
		return fmt.Errorf("committing entry batch: %w", err)
	}
	return nil
}

// Run is Fetch followed by Commit, for callers with no extra writes to
// compose.
func (o *Orchestrator) Run(ctx context.Context, since int64) (*Result, error) {
	res, err := o.Fetch(ctx, since)
	if err != nil {
		return nil, err
	}
	if err := o.Commit(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// fetchEntryData picks the fetch mode. When the server's cached config
// advertises the query-batch feature flag, the single-round-trip mode
// runs first and falls back transparently to the field-parallel fetches
// on any error.
func (o *Orchestrator) fetchEntryData(ctx context.Context, currentTeamID string, since int64) *fetchSet {
	if o.batchedEntryEnabled(ctx) {
		fetched, err := o.fetchBatched(ctx, currentTeamID, since)
		if err == nil {
			return fetched
		}
		o.logger.Info("batched entry fetch failed, falling back to parallel fetches", "error", err)
	}
	return o.fetchParallel(ctx, currentTeamID, since)
}

func (o *Orchestrator) batchedEntryEnabled(ctx context.Context) bool {
	cfg, err := o.store.GetConfig(ctx)
	if err != nil {
		return false
	}
	return cfg["FeatureFlagGraphQL"] == "true"
}

// fetchBatched replaces the four parallel fetches with one query round
// trip. The channel fetch stays a separate REST call so its 403
// classification keeps driving the fallback-team scan.
func (o *Orchestrator) fetchBatched(ctx context.Context, currentTeamID string, since int64) (*fetchSet, error) {
	batch, err := o.client.GetEntryBatch(ctx)
	if err != nil {
		return nil, err
	}
	fetched := &fetchSet{
		teams:       batch.Teams,
		memberships: batch.Memberships,
		prefs:       batch.Preferences,
		me:          batch.Me,
	}
	if currentTeamID != "" {
		fetched.channels, fetched.channelsErr = o.client.GetMyChannelsForTeam(ctx, currentTeamID, true, since)
	}
	return fetched, nil
}

// fetchParallel issues the independent entry fetches concurrently. The
// channel fetch only runs when an initial team is already known.
func (o *Orchestrator) fetchParallel(ctx context.Context, currentTeamID string, since int64) *fetchSet {
	fetched := &fetchSet{}
	var wg sync.WaitGroup

	wg.Add(4)
	go func() {
		defer wg.Done()
		fetched.teams, fetched.teamsErr = o.client.GetMyTeams(ctx)
	}()
	go func() {
		defer wg.Done()
		fetched.memberships, fetched.membershipsErr = o.client.GetMyTeamMemberships(ctx)
	}()
	go func() {
		defer wg.Done()
		fetched.prefs, fetched.prefsErr = o.client.GetMyPreferences(ctx)
	}()
	go func() {
		defer wg.Done()
		fetched.me, fetched.meErr = o.client.GetMe(ctx)
	}()

	if currentTeamID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fetched.channels, fetched.channelsErr = o.client.GetMyChannelsForTeam(ctx, currentTeamID, true, since)
		}()
	}

	wg.Wait()
	return fetched
}

// resolveInitialTeam picks the team whose channels the snapshot renders.
// A remembered team that vanished from the fetched list or 403s on its
// channel fetch is queued for removal and replaced by scanning fallback
// candidates; candidates that 403 along the way are removed too.
func (o *Orchestrator) resolveInitialTeam(ctx context.Context, currentTeamID string, fetched *fetchSet, res *Result) (string, *client.MyChannels, error) {
	available := availableTeams(fetched.teams, res.RemoveTeamIDs)

	if currentTeamID == "" {
		teamID := o.defaultTeam(ctx, available, fetched.prefs)
		if teamID == "" {
			return "", nil, nil
		}
		channels, err := o.client.GetMyChannelsForTeam(ctx, teamID, true, 0)
		if err != nil {
			if client.IsForbidden(err) {
				res.RemoveTeamIDs = append(res.RemoveTeamIDs, teamID)
				return o.scanFallbackTeams(ctx, teamID, available, res)
			}
			return "", nil, err
		}
		return teamID, channels, nil
	}

	stillMember := false
	for i := range available {
		if available[i].ID == currentTeamID {
			stillMember = true
			break
		}
	}

	if stillMember {
		if fetched.channelsErr == nil {
			return currentTeamID, fetched.channels, nil
		}
		if !client.IsForbidden(fetched.channelsErr) {
			return "", nil, fetched.channelsErr
		}
	}

	// The remembered team is gone or inaccessible.
	res.RemoveTeamIDs = append(res.RemoveTeamIDs, currentTeamID)
	return o.scanFallbackTeams(ctx, currentTeamID, available, res)
}

// scanFallbackTeams walks team history first, then the remaining
// available teams, looking for the first team whose channel fetch
// succeeds. Every 403 encountered queues that team for removal. When all
// candidates fail the snapshot carries no initial team.
func (o *Orchestrator) scanFallbackTeams(ctx context.Context, excludeTeamID string, available []model.Team, res *Result) (string, *client.MyChannels, error) {
	history, err := o.store.GetTeamHistory(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("reading team history: %w", err)
	}

	candidates := make([]string, 0, len(history)+len(available))
	seen := map[string]struct{}{excludeTeamID: {}}
	for _, id := range res.RemoveTeamIDs {
		seen[id] = struct{}{}
	}
	availableIDs := make(map[string]struct{}, len(available))
	for i := range available {
		availableIDs[available[i].ID] = struct{}{}
	}
	for _, id := range history {
		if _, skip := seen[id]; skip {
			continue
		}
		if _, ok := availableIDs[id]; !ok {
			continue
		}
		seen[id] = struct{}{}
		candidates = append(candidates, id)
	}
	for i := range available {
		if _, skip := seen[available[i].ID]; skip {
			continue
		}
		seen[available[i].ID] = struct{}{}
		candidates = append(candidates, available[i].ID)
	}

	for _, teamID := range candidates {
		channels, err := o.client.GetMyChannelsForTeam(ctx, teamID, true, 0)
		if err != nil {
			if client.IsForbidden(err) {
				res.RemoveTeamIDs = append(res.RemoveTeamIDs, teamID)
				continue
			}
			return "", nil, err
		}
		return teamID, channels, nil
	}

	o.logger.Info("no usable team found during fallback scan")
	return "", nil, nil
}

// defaultTeam resolves the cold-start team. Precedence: the server's
// configured primary team when the user is a member, then the earliest
// team in the user's order preference, then the alphabetical first.
func (o *Orchestrator) defaultTeam(ctx context.Context, available []model.Team, prefs []model.Preference) string {
	if len(available) == 0 {
		return ""
	}

	cfg, err := o.store.GetConfig(ctx)
	if err == nil {
		if primary := cfg["ExperimentalPrimaryTeam"]; primary != "" {
			for i := range available {
				if strings.EqualFold(available[i].Name, primary) {
					return available[i].ID
				}
			}
		}
	}

	if ordered := teamOrderPreference(prefs); len(ordered) > 0 {
		for _, id := range ordered {
			for i := range available {
				if available[i].ID == id {
					return id
				}
			}
		}
	}

	sorted := make([]model.Team, len(available))
	copy(sorted, available)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].DisplayName) < strings.ToLower(sorted[j].DisplayName)
	})
	return sorted[0].ID
}

// resolveInitialChannel keeps the remembered channel when it survived
// the sync, otherwise leaves the choice to the caller.
func (o *Orchestrator) resolveInitialChannel(ctx context.Context, channels *client.MyChannels) (string, error) {
	currentChannelID, err := o.store.GetCurrentChannelID(ctx)
	if err != nil {
		return "", fmt.Errorf("reading current channel: %w", err)
	}
	if currentChannelID == "" {
		return "", nil
	}
	for i := range channels.Channels {
		if channels.Channels[i].ID == currentChannelID {
			return currentChannelID, nil
		}
	}
	return "", nil
}

// availableTeams filters out teams queued for removal.
func availableTeams(teams []model.Team, removeIDs []string) []model.Team {
	removed := make(map[string]struct{}, len(removeIDs))
	for _, id := range removeIDs {
		removed[id] = struct{}{}
	}
	out := make([]model.Team, 0, len(teams))
	for i := range teams {
		if _, gone := removed[teams[i].ID]; !gone {
			out = append(out, teams[i])
		}
	}
	return out
}

// teamOrderPreference extracts the user's saved team ordering.
func teamOrderPreference(prefs []model.Preference) []string {
	for _, p := range prefs {
		if p.Category == model.PreferenceCategoryTeamsOrder && p.Value != "" {
			return strings.Split(p.Value, ",")
		}
	}
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
