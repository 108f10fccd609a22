package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/tathmini/core/reconcile"
	"github.com/trezcool/tathmini/core/user"
)

type adminApi struct {
	reconciler *reconcile.Reconciler
}

type reconcileRequest struct {
	DryRun *bool `json:"dry_run"`
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, reconciler *reconcile.Reconciler) {
	api := adminApi{reconciler: reconciler}

	ag := g.Group("/admin", jwt, roleMiddleware(user.RoleAdmin))
	ag.POST("/reconcile-duplicates", api.reconcileDuplicates)
}

// reconcileDuplicates runs a dry run unless "dry_run" is explicitly false.
func (api *adminApi) reconcileDuplicates(ctx echo.Context) error {
	data := new(reconcileRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	dryRun := data.DryRun == nil || *data.DryRun

	report, err := api.reconciler.Reconcile(ctx.Request().Context(), dryRun)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, report)
}
