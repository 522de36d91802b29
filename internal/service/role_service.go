package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/cache"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"` // Permission UUIDs
}

type UpdateRoleRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids" binding:"required"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error)
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
	RoleExists(ctx context.Context, roleName string) (bool, error)
	SeedDefaultRolesAndPermissions(ctx context.Context) error
}

type roleService struct {
	tx    repository.TransactionManager
	roles repository.RoleRepository
	cache cache.PermissionCache
}

func NewRoleService(tx repository.TransactionManager, roles repository.RoleRepository, permCache cache.PermissionCache) RoleService {
	if permCache == nil {
		permCache = cache.NewMemory(5 * time.Minute)
	}
	return &roleService{tx: tx, roles: roles, cache: permCache}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	role, err := s.findRole(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error) {
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, invalid("role name is required")
	}
	permIDs, err := parseIDs(req.Permissions, "permission")
	if err != nil {
		return nil, err
	}

	role := model.Role{
		Name:        name,
		Description: req.Description,
		IsSystem:    false,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.Create(txCtx, &role); err != nil {
			if isDuplicateKey(err) {
				return conflict("role %q already exists", name)
			}
			return fmt.Errorf("failed to create role: %w", err)
		}

		if len(permIDs) > 0 {
			perms, err := s.resolvePermissions(txCtx, permIDs)
			if err != nil {
				return err
			}
			if err := s.roles.ReplacePermissions(txCtx, &role, perms); err != nil {
				return fmt.Errorf("failed to assign permissions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetRole(ctx, role.ID.String())
}

func (s *roleService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	role, err := s.findRole(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, invalid("role name is required")
	}
	// users and tokens carry the role name
	if role.IsSystem && name != role.Name {
		return nil, forbidden("cannot rename system role %q", role.Name)
	}

	oldName := role.Name
	role.Name = name
	role.Description = req.Description

	if err := s.roles.Update(ctx, role); err != nil {
		if isDuplicateKey(err) {
			return nil, conflict("role %q already exists", name)
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	s.cache.Invalidate(ctx, oldName)

	return s.GetRole(ctx, id)
}

func (s *roleService) DeleteRole(ctx context.Context, id string) error {
	role, err := s.findRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return forbidden("cannot delete system role %q", role.Name)
	}

	if err := s.roles.Delete(ctx, role); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	s.cache.Invalidate(ctx, role.Name)
	return nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.roles.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	role, err := s.findRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	permIDs, err := parseIDs(req.PermissionIDs, "permission")
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		perms, err := s.resolvePermissions(txCtx, permIDs)
		if err != nil {
			return err
		}
		if err := s.roles.ReplacePermissions(txCtx, role, perms); err != nil {
			return fmt.Errorf("failed to update permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, role.Name)

	return s.GetRole(ctx, roleID)
}

// GetPermissionsByRoleName serves the auth middleware; results are cached per role
func (s *roleService) GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error) {
	if codes, ok := s.cache.Get(ctx, roleName); ok {
		return codes, nil
	}

	codes, err := s.roles.GetPermissionCodesByRoleName(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions for role %q: %w", roleName, err)
	}
	if codes == nil {
		codes = []string{}
	}
	s.cache.Set(ctx, roleName, codes)
	return codes, nil
}

func (s *roleService) RoleExists(ctx context.Context, roleName string) (bool, error) {
	if _, err := s.roles.FindByName(ctx, roleName); err != nil {
		if isRecordNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch role: %w", err)
	}
	return true, nil
}

type permissionDef struct {
	Code  string
	Name  string
	Group string
}

var defaultPermissions = []permissionDef{
	{model.PermUsersRead, "View users", "users"},
	{model.PermUsersWrite, "Manage users", "users"},
	{model.PermRolesRead, "View roles", "roles"},
	{model.PermRolesWrite, "Manage roles", "roles"},
	{model.PermClientsRead, "View clients", "clients"},
	{model.PermClientsWrite, "Manage clients", "clients"},
	{model.PermPartnersRead, "View partners", "partners"},
	{model.PermPartnersWrite, "Manage partners", "partners"},
	{model.PermCommissionsRead, "View commission reports", "commissions"},
	{model.PermCommissionsReq, "Request commission payouts", "commissions"},
	{model.PermTaxBlocksRead, "View fee blocks", "tax_blocks"},
	{model.PermTaxBlocksWrite, "Manage fee blocks and rates", "tax_blocks"},
	{model.PermTaxBlocksAssign, "Assign and transfer client fee blocks", "tax_blocks"},
	{model.PermMachinesRead, "View machines", "machines"},
	{model.PermMachinesWrite, "Manage and move machines", "machines"},
	{model.PermSalesRead, "View sales", "sales"},
	{model.PermSalesWrite, "Record sales", "sales"},
	{model.PermSalesExport, "Export sales", "sales"},
	{model.PermTicketsRead, "View tickets", "tickets"},
	{model.PermTicketsWrite, "Open and reply to tickets", "tickets"},
	{model.PermTicketsManage, "Assign tickets and change status", "tickets"},
	{model.PermApprovalsRead, "View approval requests", "approvals"},
	{model.PermApprovalsRequest, "Request refunds", "approvals"},
	{model.PermApprovalsDecide, "Approve or reject requests", "approvals"},
	{model.PermStatisticsRead, "View dashboard", "statistics"},
	{model.PermAuditRead, "View audit log", "audit"},
}

var defaultRoles = map[string]struct {
	Description string
	PermCodes   []string // nil means every permission
}{
	model.RoleAdmin: {
		Description: "Administrator, full access",
	},
	model.RolePartner: {
		Description: "Partner, own clients and commissions",
		PermCodes: []string{
			model.PermClientsRead, model.PermCommissionsRead, model.PermCommissionsReq,
			model.PermSalesRead, model.PermSalesExport, model.PermTaxBlocksRead, model.PermTicketsRead,
		},
	},
	model.RoleLogistics: {
		Description: "Logistics, terminal inventory",
		PermCodes: []string{
			model.PermMachinesRead, model.PermMachinesWrite, model.PermClientsRead, model.PermTicketsRead,
		},
	},
	model.RoleClient: {
		Description: "Client, own sales and tickets",
		PermCodes: []string{
			model.PermSalesRead, model.PermSalesExport, model.PermTicketsRead, model.PermTicketsWrite,
		},
	},
}

// SeedDefaultRolesAndPermissions creates the default permissions and the four system roles
func (s *roleService) SeedDefaultRolesAndPermissions(ctx context.Context) error {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		permByCode := make(map[string]model.Permission, len(defaultPermissions))
		allPerms := make([]model.Permission, 0, len(defaultPermissions))
		for _, def := range defaultPermissions {
			p := model.Permission{Code: def.Code, Name: def.Name, Group: def.Group}
			if err := s.roles.UpsertPermission(txCtx, &p); err != nil {
				return fmt.Errorf("failed to seed permission %q: %w", def.Code, err)
			}
			permByCode[p.Code] = p
			allPerms = append(allPerms, p)
		}

		for roleName, def := range defaultRoles {
			role, err := s.roles.FindByName(txCtx, roleName)
			if err != nil {
				if !isRecordNotFound(err) {
					return fmt.Errorf("failed to fetch role %q: %w", roleName, err)
				}
				role = &model.Role{Name: roleName, Description: def.Description, IsSystem: true}
				if err := s.roles.Create(txCtx, role); err != nil {
					return fmt.Errorf("failed to seed role %q: %w", roleName, err)
				}
			}

			perms := allPerms
			if def.PermCodes != nil {
				perms = make([]model.Permission, 0, len(def.PermCodes))
				for _, code := range def.PermCodes {
					if p, ok := permByCode[code]; ok {
						perms = append(perms, p)
					}
				}
			}
			if err := s.roles.ReplacePermissions(txCtx, role, perms); err != nil {
				return fmt.Errorf("failed to assign permissions to role %q: %w", roleName, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, "")
	return nil
}

// --- Helpers ---

func (s *roleService) findRole(ctx context.Context, id string) (*model.Role, error) {
	roleID, err := parseID(id, "role")
	if err != nil {
		return nil, err
	}
	role, err := s.roles.FindByIDWithPermissions(ctx, roleID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("role not found")
		}
		return nil, fmt.Errorf("failed to fetch role: %w", err)
	}
	return role, nil
}

// resolvePermissions loads the permissions and fails if any id is unknown
func (s *roleService) resolvePermissions(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error) {
	perms, err := s.roles.FindPermissionsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	if len(perms) != len(ids) {
		return nil, invalid("one or more permissions do not exist")
	}
	return perms, nil
}

func parseIDs(raw []string, label string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]bool, len(raw))
	for _, r := range raw {
		id, err := parseID(r, label)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:    p.ID.String(),
		Code:  p.Code,
		Name:  p.Name,
		Group: p.Group,
	}
}
