package database

// schema bootstraps the pulse tables plus the host-platform mirror tables the
// membership queries read from. Statements are idempotent so Migrate can run
// on every start.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id          serial PRIMARY KEY,
    first_name  text NOT NULL DEFAULT '',
    last_name   text NOT NULL DEFAULT '',
    email       text NOT NULL,
    credits     numeric NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS enrolments (
    course_id    int NOT NULL,
    user_id      int NOT NULL REFERENCES users (id),
    role_id      int NOT NULL,
    active       boolean NOT NULL DEFAULT true,
    time_created timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (course_id, user_id, role_id)
);

CREATE TABLE IF NOT EXISTS role_assignments (
    role_id       int NOT NULL,
    user_id       int NOT NULL REFERENCES users (id),
    context_id    int NOT NULL,
    context_level int NOT NULL,
    PRIMARY KEY (role_id, user_id, context_id)
);

CREATE TABLE IF NOT EXISTS role_capabilities (
    role_id    int NOT NULL,
    capability text NOT NULL,
    allowed    boolean NOT NULL DEFAULT true,
    PRIMARY KEY (role_id, capability)
);

CREATE TABLE IF NOT EXISTS group_members (
    course_id int NOT NULL,
    group_id  int NOT NULL,
    user_id   int NOT NULL REFERENCES users (id),
    PRIMARY KEY (course_id, group_id, user_id)
);

CREATE TABLE IF NOT EXISTS activity_approvals (
    activity_id int NOT NULL,
    user_id     int NOT NULL REFERENCES users (id),
    approved_at timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (activity_id, user_id)
);

CREATE TABLE IF NOT EXISTS activity_ratings (
    activity_id int NOT NULL,
    user_id     int NOT NULL REFERENCES users (id),
    value       int NOT NULL,
    PRIMARY KEY (activity_id, user_id)
);

CREATE TABLE IF NOT EXISTS activity_completions (
    activity_id int NOT NULL,
    user_id     int NOT NULL REFERENCES users (id),
    completed   boolean NOT NULL DEFAULT false,
    PRIMARY KEY (activity_id, user_id)
);

CREATE TABLE IF NOT EXISTS session_bookings (
    activity_id int NOT NULL,
    user_id     int NOT NULL REFERENCES users (id),
    PRIMARY KEY (activity_id, user_id)
);

CREATE TABLE IF NOT EXISTS pulse_instance (
    id               serial PRIMARY KEY,
    name             text NOT NULL,
    activity_id      int NOT NULL,
    activity_name    text NOT NULL DEFAULT '',
    activity_visible boolean NOT NULL DEFAULT true,
    course_id        int NOT NULL,
    course_fullname  text NOT NULL DEFAULT '',
    course_shortname text NOT NULL DEFAULT '',
    course_visible   boolean NOT NULL DEFAULT true,
    course_groupmode int NOT NULL DEFAULT 0,
    course_startdate timestamptz,
    course_enddate   timestamptz,
    context_path     text NOT NULL DEFAULT '',
    enabled          boolean NOT NULL DEFAULT true,
    sender_id        int NOT NULL DEFAULT 0,
    content          text NOT NULL DEFAULT '',
    credit_score     numeric NOT NULL DEFAULT 0,
    reaction_type    text NOT NULL DEFAULT '',
    conditions       jsonb NOT NULL DEFAULT '{}',
    watch_activities jsonb NOT NULL DEFAULT '[]',
    created_at       timestamptz NOT NULL,
    updated_at       timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS pulse_reminder (
    instance_id    int NOT NULL REFERENCES pulse_instance (id) ON DELETE CASCADE,
    type           text NOT NULL,
    enabled        boolean NOT NULL DEFAULT false,
    recipients     jsonb NOT NULL DEFAULT '[]',
    schedule       int NOT NULL DEFAULT 0,
    fixed_date     timestamptz,
    offset_secs    bigint NOT NULL DEFAULT 0,
    subject        text NOT NULL DEFAULT '',
    content        text NOT NULL DEFAULT '',
    content_format int NOT NULL DEFAULT 0,
    PRIMARY KEY (instance_id, type)
);

CREATE TABLE IF NOT EXISTS pulse_availability (
    instance_id    int NOT NULL,
    user_id        int NOT NULL,
    available      boolean NOT NULL DEFAULT false,
    available_time timestamptz,
    PRIMARY KEY (instance_id, user_id)
);

CREATE TABLE IF NOT EXISTS pulse_ledger (
    id           bigserial PRIMARY KEY,
    instance_id  int NOT NULL,
    user_id      int NOT NULL,
    type         text NOT NULL,
    for_user_id  int NOT NULL DEFAULT 0,
    status       int NOT NULL,
    claim_token  text NOT NULL DEFAULT '',
    claimed_at   timestamptz,
    delivered_at timestamptz
);

CREATE UNIQUE INDEX IF NOT EXISTS pulse_ledger_pending_key
    ON pulse_ledger (instance_id, user_id, type, for_user_id)
    WHERE status = 1;

CREATE INDEX IF NOT EXISTS pulse_ledger_delivered_key
    ON pulse_ledger (instance_id, type, user_id)
    WHERE status = 2;

CREATE TABLE IF NOT EXISTS pulse_credits (
    id          bigserial PRIMARY KEY,
    instance_id int NOT NULL,
    user_id     int NOT NULL,
    amount      numeric NOT NULL,
    awarded_at  timestamptz NOT NULL,
    UNIQUE (instance_id, user_id)
);

CREATE TABLE IF NOT EXISTS pulse_reaction (
    id          bigserial PRIMARY KEY,
    instance_id int NOT NULL,
    activity_id int NOT NULL,
    user_id     int NOT NULL,
    type        text NOT NULL,
    status      int NOT NULL,
    rating      int NOT NULL DEFAULT 0,
    created_at  timestamptz NOT NULL,
    applied_at  timestamptz
);
`
