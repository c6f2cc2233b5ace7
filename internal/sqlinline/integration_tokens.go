package sqlinline

const QSelectIntegrationTokens = `--sql 8a8e0d52-7f5d-4f21-8b7d-f7d4b821eed7
select token
from integration_tokens
where provider = $1::text
  and disabled_at is null
order by created_at asc, id asc;
`

const QInsertIntegrationToken = `--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3
with incoming as (
    select
        $1::text as provider,
        $2::text as token,
        coalesce($3::jsonb, '{}'::jsonb) as properties
)
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), (select provider from incoming), (select token from incoming), (select properties from incoming), now(), now())
on conflict (provider, token) do update set
    properties = excluded.properties,
    disabled_at = null,
    updated_at = now();
`

const QDisableIntegrationToken = `--sql 2f0d7c1e-61a4-4b7e-9d55-0c3e8f1a2b94
update integration_tokens
set disabled_at = now(), updated_at = now()
where provider = $1::text
  and token = $2::text
  and disabled_at is null;
`
