package sqlinline

const QEnsureSchema = `--sql 7d3c9a15-2e48-4b0f-b6a1-4f8e2c5d9b37
create table if not exists integration_tokens (
    id uuid primary key,
    provider text not null,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    disabled_at timestamptz,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now(),
    unique (provider, token)
);
create table if not exists partial_results (
    run_id text not null,
    item_index int not null,
    batch_index int not null,
    filename text not null,
    status text not null,
    stage text not null default '',
    error text not null default '',
    attempts int not null default 0,
    credential_index int not null default 0,
    record jsonb,
    recorded_at timestamptz not null default now(),
    primary key (run_id, item_index)
);
create table if not exists quota_usage (
    subject text not null,
    day date not null,
    used int not null default 0,
    updated_at timestamptz not null default now(),
    primary key (subject, day)
);
`
