package entity

import (
	"context"
	"fmt"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/store"
)

// dynamicMemoryModuleClasses is the fixed module-class set that may own a
// per-module dynamic memory table. Kept here rather than
// sourced from moduleregistry.Registry to avoid an import cycle
// (moduleregistry already depends on entity).
var dynamicMemoryModuleClasses = []ModuleClass{
	ModuleChat, ModuleJob, ModuleAwareness, ModuleSocialNetwork, ModuleBasicInfo, ModuleGeminiRAG, ModuleSkill,
}

// CascadeDeleteAgent deletes an agent and everything scoped beneath it,
// leaf-first, in one transactional scope:
// dynamic memory tables (by instance_id then by narrative_id) -> jobs ->
// links -> instance-scoped sub-tables (social, awareness, rag,
// report-memory, instance-json-memory) -> instances -> events ->
// narratives -> mcp-urls -> agent-messages -> agent row.
func CascadeDeleteAgent(ctx context.Context, db store.Store, agentID string) error {
	return db.Transaction(ctx, func(tx store.Tx) error {
		instanceIDs, err := idsOf(ctx, tx, TableModuleInstances, "agent_id", agentID)
		if err != nil {
			return err
		}
		narrativeIDs, err := idsOf(ctx, tx, TableNarratives, "agent_id", agentID)
		if err != nil {
			return err
		}

		for _, class := range dynamicMemoryModuleClasses {
			if err := deleteDynamicMemory(ctx, tx, InstanceMemoryTable(string(class)), "instance_id", instanceIDs); err != nil {
				return err
			}
			if err := deleteDynamicMemory(ctx, tx, EventMemoryTable(string(class)), "narrative_id", narrativeIDs); err != nil {
				return err
			}
		}

		if err := deleteWhereIn(ctx, tx, TableJobs, "agent_id", []string{agentID}); err != nil {
			return err
		}
		if err := deleteWhereIn(ctx, tx, TableInstanceLinks, "instance_id", instanceIDs); err != nil {
			return err
		}
		if err := deleteWhereIn(ctx, tx, TableSocialEntities, "instance_id", instanceIDs); err != nil {
			return err
		}
		if err := deleteWhereIn(ctx, tx, TableAwareness, "instance_id", instanceIDs); err != nil {
			return err
		}
		if err := deleteWhereIn(ctx, tx, TableRAGStores, "display_name", []string{"agent_" + agentID}); err != nil {
			return err
		}
		if err := deleteWhereIn(ctx, tx, TableReportMemory, "instance_id", instanceIDs); err != nil {
			return err
		}
		if err := deleteWhereIn(ctx, tx, TableJSONInstanceMemory, "instance_id", instanceIDs); err != nil {
			return err
		}
		if err := deleteWhereIn(ctx, tx, TableModuleInstances, "agent_id", []string{agentID}); err != nil {
			return err
		}
		if err := deleteWhereIn(ctx, tx, TableEvents, "agent_id", []string{agentID}); err != nil {
			return err
		}
		if err := deleteWhereIn(ctx, tx, TableNarratives, "agent_id", []string{agentID}); err != nil {
			return err
		}
		if err := deleteWhereIn(ctx, tx, TableMCPUrls, "agent_id", []string{agentID}); err != nil {
			return err
		}
		if err := deleteWhereIn(ctx, tx, TableAgentMessages, "agent_id", []string{agentID}); err != nil {
			return err
		}

		n, err := tx.Delete(ctx, TableAgents, store.Filters{"id": agentID})
		if err != nil {
			return errs.Internal("cascade: delete agent row failed", err)
		}
		if n == 0 {
			return errs.NotFound("agent")
		}
		return nil
	})
}

func idsOf(ctx context.Context, tx store.Tx, table, agentIDField, agentID string) ([]string, error) {
	rows, err := tx.Get(ctx, table, store.Filters{agentIDField: agentID}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal(fmt.Sprintf("cascade: scan %s failed", table), err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, stringOr(row, "id"))
	}
	return ids, nil
}

// deleteWhereIn deletes every row of table whose field matches one of ids.
// A nil/empty ids is a no-op, not an error: an agent with no instances has
// nothing to cascade into a given sub-table.
func deleteWhereIn(ctx context.Context, tx store.Tx, table, field string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Delete(ctx, table, store.Filters{field: ids})
	if err != nil {
		return errs.Internal(fmt.Sprintf("cascade: delete from %s failed", table), err)
	}
	return nil
}

// deleteDynamicMemory deletes from a per-module dynamic memory table,
// created on demand by its owning module: a table that was
// never created is treated as already-empty, not an error.
func deleteDynamicMemory(ctx context.Context, tx store.Tx, table, field string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if !store.ValidIdentifier(table) {
		return errs.Internal("cascade: invalid dynamic table name "+table, nil)
	}
	_, err := tx.Delete(ctx, table, store.Filters{field: ids})
	if err != nil {
		// The dynamic table may not exist yet; treat any failure here as
		// "nothing to delete".
		return nil
	}
	return nil
}
