// Package provision drives per-participant sandbox resources through their
// lifecycle: absent, active, locked, deleted. It is the only component that
// talks to the external database engine and Git host, and the only writer of
// resource records in the system-of-record.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/im7mortal/kmutex"

	"sandboxd/internal/domain"
	"sandboxd/internal/naming"
)

// credential is the identity reissued to external systems for one
// participant.
type credential struct {
	login       string
	password    string
	displayName string
}

// provisioner is the per-kind slice of external-system work. The
// orchestrator owns all store bookkeeping and state checking; provisioners
// only touch the external service.
type provisioner interface {
	// create builds the external artifact and grants baseline access.
	create(ctx context.Context, name string, cred credential) error
	// teardown removes the external artifact and its principal. Must
	// succeed when the artifact is already gone.
	teardown(ctx context.Context, name, login string) error
	// lock reduces external access to read-only and returns the prior
	// state needed to reverse it.
	lock(ctx context.Context, name, login string) (priorOwner string, priorPrivileges []string, err error)
	// unlock reverses lock using the recorded prior state and reissues the
	// original credential.
	unlock(ctx context.Context, name string, cred credential, rec *domain.LockRecord) error
	// verify reports whether the artifact exists externally and whether
	// the principal can still write to it.
	verify(ctx context.Context, name, login string) (exists, canWrite bool, err error)
	// server labels the external system for resource records.
	server() string
}

// Orchestrator is the provisioning state machine. All transitions for one
// (module, participant) pair serialize on a keyed mutex; the uniqueness
// constraint in the store is the last line of defense if two processes race.
type Orchestrator struct {
	resources    domain.ResourceRepository
	accounts     domain.AccountRepository
	audit        domain.AuditRepository
	provisioners map[domain.ResourceKind]provisioner
	locks        *kmutex.Kmutex
	logger       *slog.Logger
}

// NewOrchestrator wires the state machine over the store and the external
// clients.
func NewOrchestrator(
	resources domain.ResourceRepository,
	accounts domain.AccountRepository,
	audit domain.AuditRepository,
	dbAdmin domain.DatabaseAdmin,
	adminRole string,
	gitHost domain.GitHost,
	repoOwner string,
	engineLabel, hostLabel string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		resources: resources,
		accounts:  accounts,
		audit:     audit,
		provisioners: map[domain.ResourceKind]provisioner{
			domain.KindDatabase: &databaseProvisioner{
				admin:     dbAdmin,
				adminRole: adminRole,
				label:     engineLabel,
			},
			domain.KindRepository: &repositoryProvisioner{
				host:  gitHost,
				owner: repoOwner,
				label: hostLabel,
			},
		},
		locks:  kmutex.New(),
		logger: logger,
	}
}

// pairKey serializes transitions touching the same (module, participant)
// pair. Resource names and principals are derived from the pair, so this
// also covers them.
func pairKey(moduleID, accountID string) string {
	return moduleID + "/" + accountID
}

// Provision reconciles one participant to an active resource: create when
// absent, recreate when a record already exists.
func (o *Orchestrator) Provision(ctx context.Context, moduleID string, p domain.Participant, kind domain.ResourceKind) (*domain.Resource, error) {
	key := pairKey(moduleID, p.AccountID)
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	existing, err := o.resources.GetByOwner(ctx, moduleID, p.AccountID, kind)
	switch {
	case err == nil:
		return o.recreateLocked(ctx, existing, p)
	case isNotFound(err):
		return o.createLocked(ctx, moduleID, p, kind)
	default:
		return nil, err
	}
}

// Create provisions a resource for a participant that has none. A
// participant that already holds one gets a ConflictError; callers wanting
// replace semantics use Recreate.
func (o *Orchestrator) Create(ctx context.Context, moduleID string, p domain.Participant, kind domain.ResourceKind) (*domain.Resource, error) {
	key := pairKey(moduleID, p.AccountID)
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	_, err := o.resources.GetByOwner(ctx, moduleID, p.AccountID, kind)
	if err == nil {
		return nil, domain.ErrConflict("%s already provisioned for account %s", kind, p.AccountID)
	}
	if !isNotFound(err) {
		return nil, err
	}
	return o.createLocked(ctx, moduleID, p, kind)
}

// Recreate tears down and rebuilds a participant's resource. If the rebuild
// fails after teardown the participant is left absent; the next
// reconciliation sweep creates anew.
func (o *Orchestrator) Recreate(ctx context.Context, moduleID, accountID string, kind domain.ResourceKind) (*domain.Resource, error) {
	key := pairKey(moduleID, accountID)
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	existing, err := o.resources.GetByOwner(ctx, moduleID, accountID, kind)
	if err != nil {
		return nil, err
	}
	p, err := o.participant(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return o.recreateLocked(ctx, existing, p)
}

// createLocked performs the ABSENT -> ACTIVE transition. The caller holds
// the pair lock. No record is written unless every external step succeeded;
// a failed record write rolls the external artifact back so the pair stays
// ABSENT rather than orphaned.
func (o *Orchestrator) createLocked(ctx context.Context, moduleID string, p domain.Participant, kind domain.ResourceKind) (*domain.Resource, error) {
	prov, err := o.provisioner(kind)
	if err != nil {
		return nil, err
	}
	cred, err := o.credential(ctx, p)
	if err != nil {
		return nil, err
	}

	name := naming.ResourceName(moduleID, p.AccountID, "")
	if err := prov.create(ctx, name, cred); err != nil {
		return nil, err
	}

	res, err := o.resources.Create(ctx, &domain.Resource{
		ModuleID:  moduleID,
		AccountID: p.AccountID,
		Kind:      kind,
		Name:      name,
		Server:    prov.server(),
		Status:    domain.StatusActive,
		IsActive:  true,
	})
	if err != nil {
		// The artifact exists but the record write failed. Tear the
		// artifact back down so a retry starts clean; if that also fails,
		// log enough identity for operator cleanup.
		if terr := prov.teardown(ctx, name, cred.login); terr != nil {
			o.logger.Error("orphaned external artifact after failed record write",
				"kind", kind, "name", name, "login", cred.login,
				"record_error", err, "teardown_error", terr)
		}
		return nil, err
	}

	o.logAudit(ctx, domain.AuditCreateResource, res.ID, fmt.Sprintf("%s %s for %s", kind, name, cred.login))
	return res, nil
}

// recreateLocked performs delete-then-create for an existing record. The
// caller holds the pair lock.
func (o *Orchestrator) recreateLocked(ctx context.Context, existing *domain.Resource, p domain.Participant) (*domain.Resource, error) {
	prov, err := o.provisioner(existing.Kind)
	if err != nil {
		return nil, err
	}
	if err := prov.teardown(ctx, existing.Name, p.Login); err != nil {
		return nil, err
	}
	if err := o.resources.Delete(ctx, existing.ID); err != nil {
		return nil, err
	}

	res, err := o.createLocked(ctx, existing.ModuleID, p, existing.Kind)
	if err != nil {
		// The pair is now ABSENT; the next sweep will create anew.
		return nil, fmt.Errorf("recreate: old %s removed, create failed: %w", existing.Kind, err)
	}
	o.logAudit(ctx, domain.AuditRecreateResource, res.ID, fmt.Sprintf("%s %s for %s", res.Kind, res.Name, p.Login))
	return res, nil
}

// Lock transitions ACTIVE -> LOCKED: terminates live access, reduces the
// external principal to read-only, and records everything needed to reverse
// the operation, including the original recoverable credential.
func (o *Orchestrator) Lock(ctx context.Context, resourceID, reason string) (*domain.Resource, error) {
	res, err := o.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	key := pairKey(res.ModuleID, res.AccountID)
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	// Re-read under the pair lock; a concurrent transition may have moved
	// the resource.
	res, err = o.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if res.Status != domain.StatusActive {
		return nil, domain.ErrConflict("resource %s is %s, not active", res.ID, res.Status)
	}

	prov, err := o.provisioner(res.Kind)
	if err != nil {
		return nil, err
	}
	p, err := o.participant(ctx, res.AccountID)
	if err != nil {
		return nil, err
	}
	cred, err := o.credential(ctx, p)
	if err != nil {
		return nil, err
	}

	priorOwner, priorPrivileges, err := prov.lock(ctx, res.Name, cred.login)
	if err != nil {
		return nil, err
	}

	actor, _ := domain.ActorFromContext(ctx)
	rec := &domain.LockRecord{
		Version:            domain.LockRecordVersion,
		OriginalCredential: cred.password,
		PriorOwner:         priorOwner,
		PriorPrivileges:    priorPrivileges,
		LockedAt:           nowUTC(),
		LockedBy:           actor.Name,
		Reason:             reason,
	}
	if err := o.resources.SetStatus(ctx, res.ID, domain.StatusLocked, false, rec); err != nil {
		return nil, err
	}

	o.logAudit(ctx, domain.AuditLockResource, res.ID, reason)
	return o.resources.GetByID(ctx, res.ID)
}

// Unlock transitions LOCKED -> ACTIVE, reversing exactly the fields captured
// at lock time and clearing the lock record.
func (o *Orchestrator) Unlock(ctx context.Context, resourceID string) (*domain.Resource, error) {
	res, err := o.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	key := pairKey(res.ModuleID, res.AccountID)
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	res, err = o.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if res.Status != domain.StatusLocked {
		return nil, domain.ErrConflict("resource %s is %s, not locked", res.ID, res.Status)
	}
	if res.Lock == nil {
		return nil, domain.ErrConflict("resource %s has no lock record to reverse", res.ID)
	}

	prov, err := o.provisioner(res.Kind)
	if err != nil {
		return nil, err
	}
	p, err := o.participant(ctx, res.AccountID)
	if err != nil {
		return nil, err
	}

	cred := credential{login: p.Login, password: res.Lock.OriginalCredential, displayName: p.DisplayName}
	if err := prov.unlock(ctx, res.Name, cred, res.Lock); err != nil {
		return nil, err
	}
	if err := o.resources.SetStatus(ctx, res.ID, domain.StatusActive, true, nil); err != nil {
		return nil, err
	}

	o.logAudit(ctx, domain.AuditUnlockResource, res.ID, "")
	return o.resources.GetByID(ctx, res.ID)
}

// Delete transitions ACTIVE or LOCKED -> ABSENT: external teardown first,
// then the record. Deleting an absent resource succeeds without touching the
// external system.
func (o *Orchestrator) Delete(ctx context.Context, moduleID, accountID string, kind domain.ResourceKind) error {
	key := pairKey(moduleID, accountID)
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	res, err := o.resources.GetByOwner(ctx, moduleID, accountID, kind)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return o.deleteLocked(ctx, res)
}

// DeleteByID is Delete addressed by resource ID.
func (o *Orchestrator) DeleteByID(ctx context.Context, resourceID string) error {
	res, err := o.resources.GetByID(ctx, resourceID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	key := pairKey(res.ModuleID, res.AccountID)
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	res, err = o.resources.GetByID(ctx, resourceID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return o.deleteLocked(ctx, res)
}

func (o *Orchestrator) deleteLocked(ctx context.Context, res *domain.Resource) error {
	prov, err := o.provisioner(res.Kind)
	if err != nil {
		return err
	}
	p, err := o.participant(ctx, res.AccountID)
	if err != nil {
		return err
	}

	if err := prov.teardown(ctx, res.Name, p.Login); err != nil {
		// Record stays; the identifying detail below makes a retry of the
		// same delete idempotent and convergent.
		o.logger.Error("external teardown failed",
			"kind", res.Kind, "name", res.Name, "login", p.Login, "error", err)
		return err
	}
	if err := o.resources.Delete(ctx, res.ID); err != nil {
		o.logger.Error("record delete failed after external teardown",
			"kind", res.Kind, "name", res.Name, "resource_id", res.ID, "error", err)
		return err
	}

	o.logAudit(ctx, domain.AuditDeleteResource, res.ID, fmt.Sprintf("%s %s", res.Kind, res.Name))
	return nil
}

// Diagnose compares the stored state of a resource with the external
// system. Mismatches are reported, never auto-corrected.
func (o *Orchestrator) Diagnose(ctx context.Context, resourceID string) (*domain.Diagnosis, error) {
	res, err := o.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	prov, err := o.provisioner(res.Kind)
	if err != nil {
		return nil, err
	}
	p, err := o.participant(ctx, res.AccountID)
	if err != nil {
		return nil, err
	}

	exists, canWrite, err := prov.verify(ctx, res.Name, p.Login)
	if err != nil {
		return nil, err
	}

	d := &domain.Diagnosis{
		ResourceID:     res.ID,
		Kind:           res.Kind,
		Name:           res.Name,
		StoreStatus:    res.Status,
		ExternalExists: exists,
		ExternalWrite:  canWrite,
		Consistent:     true,
	}
	if !exists {
		d.Consistent = false
		d.Findings = append(d.Findings, "record present but external artifact missing")
	}
	if exists && res.Status == domain.StatusActive && !canWrite {
		d.Consistent = false
		d.Findings = append(d.Findings, "record active but principal cannot write externally")
	}
	if exists && res.Status == domain.StatusLocked && canWrite {
		d.Consistent = false
		d.Findings = append(d.Findings, "record locked but principal can still write externally")
	}
	return d, nil
}

// Resources exposes read access to the store for the API layer.
func (o *Orchestrator) Resources() domain.ResourceRepository { return o.resources }

func (o *Orchestrator) provisioner(kind domain.ResourceKind) (provisioner, error) {
	prov, ok := o.provisioners[kind]
	if !ok {
		return nil, domain.ErrValidation("unknown resource kind %q", kind)
	}
	return prov, nil
}

func (o *Orchestrator) participant(ctx context.Context, accountID string) (domain.Participant, error) {
	a, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return domain.Participant{}, err
	}
	return domain.Participant{AccountID: a.ID, Login: a.Login, DisplayName: a.Login}, nil
}

func (o *Orchestrator) credential(ctx context.Context, p domain.Participant) (credential, error) {
	login, password, err := o.accounts.CredentialForReissue(ctx, p.AccountID)
	if err != nil {
		return credential{}, err
	}
	return credential{login: login, password: password, displayName: p.DisplayName}, nil
}

func (o *Orchestrator) logAudit(ctx context.Context, action, subject, detail string) {
	actor, _ := domain.ActorFromContext(ctx)
	if err := o.audit.Insert(ctx, &domain.AuditEntry{
		Actor:   actor.Name,
		Action:  action,
		Subject: subject,
		Detail:  detail,
	}); err != nil {
		o.logger.Warn("audit insert failed", "action", action, "subject", subject, "error", err)
	}
}

func isNotFound(err error) bool {
	var nf *domain.NotFoundError
	return errors.As(err, &nf)
}
