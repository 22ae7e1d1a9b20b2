package db

// SchemaSQL contains the database schema initialization SQL.
// Timestamps are sent as RFC 3339 strings and cast on write.
const SchemaSQL = `
    -- ==========================================================================
    -- DOCUMENT TABLE (source material for generation)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS document SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON document TYPE string;
    DEFINE FIELD IF NOT EXISTS path ON document TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON document TYPE string;
    DEFINE FIELD IF NOT EXISTS repository_id ON document TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS created_at ON document TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- TASK TABLE (current state, soft-deleted via deleted_at)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS task SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS type ON task TYPE string ASSERT $value IN ["multiple_choice", "free_text"];
    DEFINE FIELD IF NOT EXISTS question ON task TYPE string;
    DEFINE FIELD IF NOT EXISTS options ON task TYPE array<object>;
    DEFINE FIELD IF NOT EXISTS options.* ON task TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS unit_id ON task TYPE string;
    DEFINE FIELD IF NOT EXISTS repository_id ON task TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS document_id ON task TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS chunk_id ON task TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS created_at ON task TYPE datetime VALUE <datetime>$value;
    DEFINE FIELD IF NOT EXISTS updated_at ON task TYPE datetime VALUE <datetime>$value;
    DEFINE FIELD IF NOT EXISTS deleted_at ON task TYPE option<datetime> VALUE IF $value THEN <datetime>$value ELSE NONE END;

    DEFINE INDEX IF NOT EXISTS task_unit ON task FIELDS unit_id;
    DEFINE INDEX IF NOT EXISTS task_repository ON task FIELDS repository_id;

    -- ==========================================================================
    -- TASK_VERSION TABLE (immutable snapshots, dense per task)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS task_version SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS task_id ON task_version TYPE string;
    DEFINE FIELD IF NOT EXISTS version ON task_version TYPE int ASSERT $value >= 1;
    DEFINE FIELD IF NOT EXISTS type ON task_version TYPE string;
    DEFINE FIELD IF NOT EXISTS question ON task_version TYPE string;
    DEFINE FIELD IF NOT EXISTS options ON task_version TYPE array<object>;
    DEFINE FIELD IF NOT EXISTS options.* ON task_version TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON task_version TYPE datetime VALUE <datetime>$value;
    DEFINE FIELD IF NOT EXISTS created_by ON task_version TYPE option<string>;

    DEFINE INDEX IF NOT EXISTS task_version_unique ON task_version FIELDS task_id, version UNIQUE;

    -- ==========================================================================
    -- CHANGE_EVENT TABLE (append-only)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS change_event SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS task_id ON change_event TYPE string;
    DEFINE FIELD IF NOT EXISTS repository_id ON change_event TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS kind ON change_event TYPE string;
    DEFINE FIELD IF NOT EXISTS version ON change_event TYPE int;
    DEFINE FIELD IF NOT EXISTS old_value ON change_event TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS new_value ON change_event TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metadata ON change_event TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS user_id ON change_event TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS timestamp ON change_event TYPE datetime VALUE <datetime>$value;
    DEFINE FIELD IF NOT EXISTS sequence ON change_event TYPE int;

    DEFINE INDEX IF NOT EXISTS change_event_task ON change_event FIELDS task_id;
    DEFINE INDEX IF NOT EXISTS change_event_repository ON change_event FIELDS repository_id;

    -- ==========================================================================
    -- ANSWER_EVENT TABLE (append-only)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS answer_event SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS task_id ON answer_event TYPE string;
    DEFINE FIELD IF NOT EXISTS repository_id ON answer_event TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS task_version ON answer_event TYPE int;
    DEFINE FIELD IF NOT EXISTS user_id ON answer_event TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS result ON answer_event TYPE string;
    DEFINE FIELD IF NOT EXISTS chosen_option_id ON answer_event TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS answer ON answer_event TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS feedback ON answer_event TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS timestamp ON answer_event TYPE datetime VALUE <datetime>$value;
    DEFINE FIELD IF NOT EXISTS sequence ON answer_event TYPE int;

    DEFINE INDEX IF NOT EXISTS answer_event_task ON answer_event FIELDS task_id;
    DEFINE INDEX IF NOT EXISTS answer_event_repository ON answer_event FIELDS repository_id;

    -- ==========================================================================
    -- PAGE_VISIT TABLE (append-only)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS page_visit SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS page ON page_visit TYPE string;
    DEFINE FIELD IF NOT EXISTS user_id ON page_visit TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS repository_id ON page_visit TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS task_id ON page_visit TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS entered_at ON page_visit TYPE datetime VALUE <datetime>$value;
    DEFINE FIELD IF NOT EXISTS left_at ON page_visit TYPE datetime VALUE <datetime>$value;

    DEFINE INDEX IF NOT EXISTS page_visit_repository ON page_visit FIELDS repository_id;
`
