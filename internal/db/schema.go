package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- SITE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS site SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS org_id ON site TYPE string;
    DEFINE FIELD IF NOT EXISTS base_url ON site TYPE string;
    DEFINE FIELD IF NOT EXISTS credential_ref ON site TYPE string;
    DEFINE FIELD IF NOT EXISTS active ON site TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created_at ON site TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON site TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS site_org ON site FIELDS org_id;

    -- ==========================================================================
    -- CONTENT_ITEM TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS content_item SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS org_id ON content_item TYPE string;
    DEFINE FIELD IF NOT EXISTS site_id ON content_item TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON content_item TYPE string;
    DEFINE FIELD IF NOT EXISTS body ON content_item TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON content_item TYPE string
        ASSERT $value IN ["draft", "published"];
    DEFINE FIELD IF NOT EXISTS source_type ON content_item TYPE string
        ASSERT $value IN ["page", "ai_content", "template"];
    DEFINE FIELD IF NOT EXISTS remote_post_id ON content_item TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS remote_url ON content_item TYPE string DEFAULT "";
    -- The marker pair is only ever written together; see store.ContentStore.
    DEFINE FIELD IF NOT EXISTS revision_marker ON content_item TYPE string;
    DEFINE FIELD IF NOT EXISTS last_synced_revision_marker ON content_item TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS remote_revision_marker ON content_item TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS last_embedded_hash ON content_item TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS embedding ON content_item TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS updated_at ON content_item TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS content_site ON content_item FIELDS site_id;
    DEFINE INDEX IF NOT EXISTS content_remote ON content_item FIELDS site_id, remote_post_id;
    DEFINE INDEX IF NOT EXISTS content_org ON content_item FIELDS org_id;
    DEFINE INDEX IF NOT EXISTS content_embedding ON content_item FIELDS embedding HNSW DIMENSION 384 DIST COSINE TYPE F32;

    -- ==========================================================================
    -- SYNC_CURSOR TABLE (record id = site id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS sync_cursor SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS site_id ON sync_cursor TYPE string;
    DEFINE FIELD IF NOT EXISTS last_pulled_at ON sync_cursor TYPE datetime;
    DEFINE FIELD IF NOT EXISTS last_processed_remote_ids ON sync_cursor TYPE array<int> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS updated_at ON sync_cursor TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- PLUGIN_CONFIG TABLE (record id = site id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS plugin_config SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS site_id ON plugin_config TYPE string;
    DEFINE FIELD IF NOT EXISTS org_id ON plugin_config TYPE string;
    DEFINE FIELD IF NOT EXISTS api_key ON plugin_config TYPE string;
    DEFINE FIELD IF NOT EXISTS hmac_secret ON plugin_config TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS active ON plugin_config TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created_at ON plugin_config TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS plugin_api_key ON plugin_config FIELDS api_key UNIQUE;

    -- ==========================================================================
    -- CONFLICT TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conflict SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS org_id ON conflict TYPE string;
    DEFINE FIELD IF NOT EXISTS site_id ON conflict TYPE string;
    DEFINE FIELD IF NOT EXISTS content_id ON conflict TYPE string;
    DEFINE FIELD IF NOT EXISTS local_snapshot ON conflict TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS remote_snapshot ON conflict TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS status ON conflict TYPE string
        ASSERT $value IN ["open", "resolved"];
    DEFINE FIELD IF NOT EXISTS resolution_note ON conflict TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS detected_at ON conflict TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS resolved_at ON conflict TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS conflict_content ON conflict FIELDS content_id, status;
    DEFINE INDEX IF NOT EXISTS conflict_org ON conflict FIELDS org_id, status;

    -- ==========================================================================
    -- EMBEDDING_JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS embedding_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS org_id ON embedding_job TYPE string;
    DEFINE FIELD IF NOT EXISTS site_id ON embedding_job TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS source_type ON embedding_job TYPE string
        ASSERT $value IN ["page", "ai_content", "template"];
    DEFINE FIELD IF NOT EXISTS source_id ON embedding_job TYPE string;
    -- At most one queued/processing job may exist per coalesce_key
    DEFINE FIELD IF NOT EXISTS coalesce_key ON embedding_job VALUE string::concat(org_id, "/", source_type, "/", source_id);
    DEFINE FIELD IF NOT EXISTS content_hash ON embedding_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON embedding_job TYPE string
        ASSERT $value IN ["queued", "processing", "done", "failed"];
    DEFINE FIELD IF NOT EXISTS error ON embedding_job TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS enqueued_at ON embedding_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON embedding_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS job_coalesce ON embedding_job FIELDS coalesce_key, status;
    DEFINE INDEX IF NOT EXISTS job_status ON embedding_job FIELDS status, enqueued_at;

    -- ==========================================================================
    -- SYNC_COUNTER TABLE (record id = site id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS sync_counter SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS site_id ON sync_counter TYPE string;
    DEFINE FIELD IF NOT EXISTS org_id ON sync_counter TYPE string;
    DEFINE FIELD IF NOT EXISTS pull_successes ON sync_counter TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS pull_failures ON sync_counter TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS push_successes ON sync_counter TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS push_failures ON sync_counter TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS last_success_at ON sync_counter TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS total_lag_ms ON sync_counter TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS lag_samples ON sync_counter TYPE int DEFAULT 0;
`
